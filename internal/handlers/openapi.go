package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/gorilla/mux"
	"gopkg.in/yaml.v3"
)

// OpenAPIHandler serves the API description as YAML and JSON
type OpenAPIHandler struct {
	path string

	once     sync.Once
	yamlData []byte
	jsonData []byte
	loadErr  error
}

// NewOpenAPIHandler creates a handler for the document at openAPIPath. The file is read on first request.
func NewOpenAPIHandler(openAPIPath string) *OpenAPIHandler {
	absPath, err := filepath.Abs(filepath.Clean(openAPIPath))
	if err != nil {
		absPath = filepath.Clean(openAPIPath)
	}
	return &OpenAPIHandler{path: absPath}
}

// RegisterRoutes registers OpenAPI routes
func (h *OpenAPIHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/v1/openapi.yaml", h.ServeYAML).Methods("GET")
	r.HandleFunc("/api/v1/openapi.json", h.ServeJSON).Methods("GET")
}

func (h *OpenAPIHandler) load() error {
	h.once.Do(func() {
		data, err := os.ReadFile(h.path)
		if err != nil {
			h.loadErr = err
			return
		}
		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			h.loadErr = fmt.Errorf("failed to parse OpenAPI document: %w", err)
			return
		}
		jsonData, err := json.Marshal(doc)
		if err != nil {
			h.loadErr = fmt.Errorf("failed to convert OpenAPI document: %w", err)
			return
		}
		h.yamlData, h.jsonData = data, jsonData
	})
	return h.loadErr
}

// ServeYAML serves the OpenAPI document in YAML format
func (h *OpenAPIHandler) ServeYAML(w http.ResponseWriter, r *http.Request) {
	h.serve(w, "application/x-yaml", func() []byte { return h.yamlData })
}

// ServeJSON serves the OpenAPI document converted to JSON
func (h *OpenAPIHandler) ServeJSON(w http.ResponseWriter, r *http.Request) {
	h.serve(w, "application/json", func() []byte { return h.jsonData })
}

func (h *OpenAPIHandler) serve(w http.ResponseWriter, contentType string, body func() []byte) {
	if err := h.load(); err != nil {
		if os.IsNotExist(err) {
			respondJSONError(w, http.StatusNotFound, "Not Found", "OpenAPI specification not found")
			return
		}
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to load OpenAPI specification")
		return
	}
	w.Header().Set("Content-Type", contentType)
	_, _ = w.Write(body())
}
