package dbexec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/levante-framework/levante-dashboard-sub000/internal/docvalue"
	"github.com/levante-framework/levante-dashboard-sub000/internal/planner"
)

const (
	DefaultBaseURL = "https://firestore.googleapis.com"
	apiVersion     = "v1"
	maxErrorBody   = 4096
)

// RESTConfig configures a RESTExecutor.
type RESTConfig struct {
	BaseURL    string
	ProjectID  string
	DatabaseID string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// RESTExecutor talks to the document store REST endpoints.
type RESTExecutor struct {
	baseURL string
	root    string
	client  *http.Client
	timeout time.Duration
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %d %s: %s", e.Operation, e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %d %s", e.Operation, e.StatusCode, e.Status)
}

// NewRESTExecutor validates cfg and returns an executor.
func NewRESTExecutor(cfg RESTConfig) (*RESTExecutor, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, fmt.Errorf("%w: project id is required", ErrNotConfigured)
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("%w: base url is required", ErrNotConfigured)
	}
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &RESTExecutor{
		baseURL: baseURL,
		root:    docvalue.DocumentsRoot(cfg.ProjectID, cfg.DatabaseID),
		client:  client,
		timeout: cfg.Timeout,
	}, nil
}

// Root returns the fully-qualified documents root.
func (e *RESTExecutor) Root() string {
	return e.root
}

// Close drops the client's idle keep-alive connections. In-flight requests
// are unaffected.
func (e *RESTExecutor) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

type queryResponseEntry struct {
	Document       *docvalue.Document `json:"document,omitempty"`
	ReadTime       string             `json:"readTime,omitempty"`
	SkippedResults int                `json:"skippedResults,omitempty"`
	Error          *apiError          `json:"error,omitempty"`
}

type aggregationResponseEntry struct {
	Result *struct {
		AggregateFields map[string]json.RawMessage `json:"aggregateFields"`
	} `json:"result,omitempty"`
	ReadTime string    `json:"readTime,omitempty"`
	Error    *apiError `json:"error,omitempty"`
}

type batchGetBody struct {
	Documents []string  `json:"documents"`
	Mask      *maskBody `json:"mask,omitempty"`
}

type maskBody struct {
	FieldPaths []string `json:"fieldPaths"`
}

type batchGetResponseEntry struct {
	Found    *docvalue.Document `json:"found,omitempty"`
	Missing  string             `json:"missing,omitempty"`
	ReadTime string             `json:"readTime,omitempty"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

type apiErrorEnvelope struct {
	Error *apiError `json:"error"`
}

// RunQuery executes a structured query and returns the matched documents in order.
func (e *RESTExecutor) RunQuery(ctx context.Context, req planner.QueryRequest) ([]docvalue.Document, error) {
	var entries []queryResponseEntry
	if err := e.post(ctx, "runQuery", e.parentPath(req.Parent)+":runQuery", req, &entries); err != nil {
		return nil, err
	}
	docs := make([]docvalue.Document, 0, len(entries))
	for _, entry := range entries {
		if entry.Error != nil {
			return nil, &StatusError{Operation: "runQuery", StatusCode: entry.Error.Code, Status: entry.Error.Status, Message: entry.Error.Message}
		}
		if entry.Document != nil {
			docs = append(docs, *entry.Document)
		}
	}
	return docs, nil
}

// RunAggregationQuery executes a count aggregation.
func (e *RESTExecutor) RunAggregationQuery(ctx context.Context, req planner.AggregationRequest) ([]AggregationResult, error) {
	var entries []aggregationResponseEntry
	if err := e.post(ctx, "runAggregationQuery", e.parentPath(req.Parent)+":runAggregationQuery", req, &entries); err != nil {
		return nil, err
	}
	results := make([]AggregationResult, 0, len(entries))
	for _, entry := range entries {
		if entry.Error != nil {
			return nil, &StatusError{Operation: "runAggregationQuery", StatusCode: entry.Error.Code, Status: entry.Error.Status, Message: entry.Error.Message}
		}
		if entry.Result == nil {
			continue
		}
		results = append(results, AggregationResult{AggregateFields: entry.Result.AggregateFields, ReadTime: entry.ReadTime})
	}
	return results, nil
}

// BatchGet reads documents by relative path. Results follow the store's
// response order, which need not match the request order.
func (e *RESTExecutor) BatchGet(ctx context.Context, req BatchGetRequest) ([]BatchGetResult, error) {
	if len(req.Documents) == 0 {
		return nil, nil
	}
	body := batchGetBody{Documents: make([]string, len(req.Documents))}
	for i, path := range req.Documents {
		body.Documents[i] = docvalue.FullPath(e.root, path)
	}
	if len(req.Mask) > 0 {
		body.Mask = &maskBody{FieldPaths: req.Mask}
	}

	var entries []batchGetResponseEntry
	if err := e.post(ctx, "batchGet", e.root+":batchGet", body, &entries); err != nil {
		return nil, err
	}
	results := make([]BatchGetResult, 0, len(entries))
	for _, entry := range entries {
		switch {
		case entry.Found != nil:
			results = append(results, BatchGetResult{Found: entry.Found})
		case entry.Missing != "":
			results = append(results, BatchGetResult{Missing: entry.Missing})
		}
	}
	return results, nil
}

func (e *RESTExecutor) parentPath(parent string) string {
	parent = strings.Trim(parent, "/")
	if parent == "" {
		return e.root
	}
	return docvalue.FullPath(e.root, parent)
}

func (e *RESTExecutor) post(ctx context.Context, operation, path string, payload any, out any) error {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", operation, err)
	}
	url := e.baseURL + "/" + apiVersion + "/" + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", operation, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(operation, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", operation, err)
	}
	return nil
}

func statusError(operation string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	statusErr := &StatusError{
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Status:     http.StatusText(resp.StatusCode),
	}
	// The body is either a single error envelope or a one-element array of them.
	var envelope apiErrorEnvelope
	var envelopes []apiErrorEnvelope
	switch {
	case json.Unmarshal(raw, &envelope) == nil && envelope.Error != nil:
		statusErr.Status = envelope.Error.Status
		statusErr.Message = envelope.Error.Message
	case json.Unmarshal(raw, &envelopes) == nil && len(envelopes) > 0 && envelopes[0].Error != nil:
		statusErr.Status = envelopes[0].Error.Status
		statusErr.Message = envelopes[0].Error.Message
	default:
		statusErr.Message = strings.TrimSpace(string(raw))
	}
	return statusErr
}
