package testcase

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"qaforge/internal/failure"
)

func TestHandler_Generate(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		setup       func(*MockPipeline, *MockRepo)
		wantStatus  int
		wantSuccess bool
		wantCode    string
	}{
		{
			name: "Success Defaults To Negative Cases",
			body: `{"query": "discount code"}`,
			setup: func(p *MockPipeline, r *MockRepo) {
				p.On("Retrieve", mock.Anything, "discount code"+negativeHint, 8, mock.Anything).Return(retrieved, nil)
				p.On("Generate", mock.Anything, mock.Anything).Return("["+oneCase+"]", nil)
				r.On("SaveAll", mock.Anything, mock.Anything, mock.Anything).Return(nil)
			},
			wantStatus:  http.StatusOK,
			wantSuccess: true,
		},
		{
			name: "Reported Extraction Failure",
			body: `{"query": "discount code", "include_negative": false}`,
			setup: func(p *MockPipeline, r *MockRepo) {
				p.On("Retrieve", mock.Anything, "discount code", 8, mock.Anything).Return(retrieved, nil)
				p.On("Generate", mock.Anything, mock.Anything).Return("no json here", nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "Provider Failure",
			body: `{"query": "discount code"}`,
			setup: func(p *MockPipeline, r *MockRepo) {
				p.On("Retrieve", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
					Return(nil, failure.New(failure.ErrEmbedding, "embed", errors.New("quota")))
			},
			wantStatus: http.StatusBadGateway,
			wantCode:   "EMBEDDING_FAILURE",
		},
		{
			name:       "Empty Query",
			body:       `{"query": ""}`,
			setup:      func(p *MockPipeline, r *MockRepo) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, repo := new(MockPipeline), new(MockRepo)
			tt.setup(p, repo)
			h := NewHandler(NewGenerator(p, repo, 8))

			w := httptest.NewRecorder()
			h.Generate(w, httptest.NewRequest("POST", "/api/test-cases/generate", bytes.NewBufferString(tt.body)))

			assert.Equal(t, tt.wantStatus, w.Code)
			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.wantSuccess, body["success"])
			assert.NotEmpty(t, body["message"])
			assert.Contains(t, body, "data")
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, body["error"].(map[string]interface{})["code"])
			}
		})
	}
}

func TestHandler_Generate_BadJSON(t *testing.T) {
	h := NewHandler(NewGenerator(new(MockPipeline), nil, 8))
	w := httptest.NewRecorder()
	h.Generate(w, httptest.NewRequest("POST", "/api/test-cases/generate", bytes.NewBufferString("{")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_List(t *testing.T) {
	repo := new(MockRepo)
	repo.On("List", mock.Anything, 100).Return(nil, nil)
	repo.On("List", mock.Anything, 5).Return([]Record{{ID: 1, TestCase: sample}}, nil)
	h := NewHandler(NewGenerator(new(MockPipeline), repo, 8))

	w := httptest.NewRecorder()
	h.List(w, httptest.NewRequest("GET", "/api/test-cases", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"data":[]`)

	w = httptest.NewRecorder()
	h.List(w, httptest.NewRequest("GET", "/api/test-cases?limit=5", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)

	w = httptest.NewRecorder()
	h.List(w, httptest.NewRequest("GET", "/api/test-cases?limit=zero", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_Get(t *testing.T) {
	repo := new(MockRepo)
	repo.On("Latest", mock.Anything, "TC-001").Return(&sample, nil)
	repo.On("Latest", mock.Anything, "TC-404").Return(nil, sql.ErrNoRows)
	h := NewHandler(NewGenerator(new(MockPipeline), repo, 8))

	req := httptest.NewRequest("GET", "/api/test-cases/TC-001", nil)
	req.SetPathValue("id", "TC-001")
	w := httptest.NewRecorder()
	h.Get(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"test_id":"TC-001"`)

	req = httptest.NewRequest("GET", "/api/test-cases/TC-404", nil)
	req.SetPathValue("id", "TC-404")
	w = httptest.NewRecorder()
	h.Get(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
