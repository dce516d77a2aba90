package risk

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// ArtifactStatus reports whether the model artifacts are present on disk.
type ArtifactStatus struct {
	ModelPath      string `json:"model_path"`
	ModelExists    bool   `json:"model_exists"`
	FeaturesPath   string `json:"features_path"`
	FeaturesExists bool   `json:"features_exists"`
}

// ModelStore lazily loads the classifier and feature schema from disk and
// shares the loaded pair across requests. A failed load is never cached:
// each call retries until the artifacts are installed. After a successful
// load only the read lock is taken.
type ModelStore struct {
	modelPath    string
	featuresPath string

	mu         sync.RWMutex
	classifier Classifier
	schema     Schema
}

// NewModelStore creates a store for the given artifact paths. Nothing is
// read until the first Load.
func NewModelStore(modelPath, featuresPath string) *ModelStore {
	return &ModelStore{modelPath: modelPath, featuresPath: featuresPath}
}

// Load returns the shared classifier and schema, reading them from disk on
// first use. Safe under concurrent first access.
func (s *ModelStore) Load() (Classifier, Schema, error) {
	s.mu.RLock()
	if s.classifier != nil {
		classifier, schema := s.classifier, s.schema
		s.mu.RUnlock()
		return classifier, schema, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.classifier != nil {
		return s.classifier, s.schema, nil
	}

	schema, err := loadSchema(s.featuresPath)
	if err != nil {
		return nil, nil, &UnavailableError{Path: s.featuresPath, Err: err}
	}

	model, err := loadModel(s.modelPath, schema)
	if err != nil {
		return nil, nil, &UnavailableError{Path: s.modelPath, Err: err}
	}

	s.classifier = model
	s.schema = schema
	return s.classifier, s.schema, nil
}

// Status reports artifact presence without loading anything.
func (s *ModelStore) Status() ArtifactStatus {
	return ArtifactStatus{
		ModelPath:      s.modelPath,
		ModelExists:    fileExists(s.modelPath),
		FeaturesPath:   s.featuresPath,
		FeaturesExists: fileExists(s.featuresPath),
	}
}

func loadSchema(path string) (Schema, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open feature order file: %w", err)
	}
	defer file.Close()

	var schema Schema
	if err := json.NewDecoder(file).Decode(&schema); err != nil {
		return nil, fmt.Errorf("failed to decode feature order: %w", err)
	}
	if len(schema) == 0 {
		return nil, fmt.Errorf("feature order file %s lists no features", path)
	}
	return schema, nil
}

func loadModel(path string, schema Schema) (*LogisticModel, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open model file: %w", err)
	}
	defer file.Close()

	var artifact ModelArtifact
	if err := json.NewDecoder(file).Decode(&artifact); err != nil {
		return nil, fmt.Errorf("failed to decode model artifact: %w", err)
	}

	return NewLogisticModel(&artifact, schema)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
