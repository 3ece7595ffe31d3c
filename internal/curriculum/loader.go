package curriculum

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

const catalogFile = "catalog.yaml"

// Loader loads and caches the topic catalog and quizzes from the filesystem.
type Loader struct {
	rootDir string
	catalog *Catalog
	quizzes map[string]Quiz
	mu      sync.RWMutex
}

// NewLoader creates a new curriculum loader and loads all content.
// The root directory must contain catalog.yaml; quizzes are read from any
// *.quiz.yaml file below it.
func NewLoader(rootDir string) (*Loader, error) {
	l := &Loader{
		rootDir: rootDir,
		quizzes: make(map[string]Quiz),
	}

	if err := l.loadCatalog(); err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}
	if err := l.loadQuizzes(); err != nil {
		return nil, fmt.Errorf("loading quizzes: %w", err)
	}

	slog.Info("curriculum loaded",
		"topics", len(l.catalog.Topics()),
		"quizzes", len(l.quizzes),
	)
	return l, nil
}

// Catalog returns the topic catalog.
func (l *Loader) Catalog() *Catalog {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.catalog
}

// GetQuiz returns a quiz by ID.
func (l *Loader) GetQuiz(id string) (Quiz, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	q, ok := l.quizzes[id]
	return q, ok
}

// QuizzesForTopic returns the quizzes bound to a topic, sorted by ID.
func (l *Loader) QuizzesForTopic(slug string) []Quiz {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Quiz
	for _, q := range l.quizzes {
		if q.Topic == slug {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AllQuizzes returns all loaded quizzes, sorted by ID.
func (l *Loader) AllQuizzes() []Quiz {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Quiz, 0, len(l.quizzes))
	for _, q := range l.quizzes {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (l *Loader) loadCatalog() error {
	data, err := os.ReadFile(filepath.Join(l.rootDir, catalogFile))
	if err != nil {
		return err
	}

	var doc struct {
		Topics []Topic `yaml:"topics"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing %s: %w", catalogFile, err)
	}

	catalog, err := NewCatalog(doc.Topics)
	if err != nil {
		return err
	}
	if gaps := catalog.Gaps(); len(gaps) > 0 {
		slog.Warn("catalog has gaps in topic order; topics after a gap stay locked", "missing_orders", gaps)
	}

	l.mu.Lock()
	l.catalog = catalog
	l.mu.Unlock()
	return nil
}

func (l *Loader) loadQuizzes() error {
	return filepath.Walk(l.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".quiz.yaml") || strings.HasSuffix(path, ".quiz.yml") {
			return l.loadQuiz(path)
		}
		return nil
	})
}

func (l *Loader) loadQuiz(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		slog.Warn("skipping invalid quiz YAML", "path", path, "error", err)
		return nil
	}
	if err := validateQuizDocument(raw); err != nil {
		slog.Warn("skipping quiz that fails schema validation", "path", path, "error", err)
		return nil
	}

	var quiz Quiz
	if err := yaml.Unmarshal(data, &quiz); err != nil {
		slog.Warn("skipping invalid quiz YAML", "path", path, "error", err)
		return nil
	}
	if err := quiz.Validate(); err != nil {
		slog.Warn("skipping inconsistent quiz", "path", path, "error", err)
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.catalog.Get(quiz.Topic); !ok {
		slog.Warn("skipping quiz for unknown topic", "path", path, "topic", quiz.Topic)
		return nil
	}
	if _, dup := l.quizzes[quiz.ID]; dup {
		return fmt.Errorf("duplicate quiz id %q in %s", quiz.ID, path)
	}
	l.quizzes[quiz.ID] = quiz
	return nil
}
