package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/docrag/internal/search"
	"github.com/Aman-CERP/docrag/internal/telemetry"
	"github.com/Aman-CERP/docrag/pkg/version"
)

// Tool names that are not per-corpus.
const (
	ToolListCorpora    = "list_corpora"
	ToolPrepareContext = "prepare_context"

	searchToolPrefix = "search_"
	maxTopK          = 50
)

// Answer texts.
const (
	answerNone  = "No relevant context found."
	answerFound = "Found %d relevant results in %s."
)

// Corpus is one searchable corpus offered as a tool.
type Corpus struct {
	Name        string
	Kind        string
	Description string
	Searcher    *search.Searcher
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

// SearchInput defines the input schema for search_<corpus> tools.
type SearchInput struct {
	Query string `json:"query" jsonschema:"the search query"`
	TopK  int    `json:"top_k,omitempty" jsonschema:"number of results to return, default 5"`
}

// SearchOutput defines the output schema for search_<corpus> tools.
type SearchOutput struct {
	Answer  string           `json:"answer" jsonschema:"one-line summary of the result"`
	Context string           `json:"context" jsonschema:"numbered passages ready to cite"`
	Results []map[string]any `json:"results" jsonschema:"matching rows with their distance under score (lower is closer)"`
}

// ListCorporaInput defines the input schema for list_corpora (no parameters).
type ListCorporaInput struct{}

// ListCorporaOutput defines the output schema for list_corpora.
type ListCorporaOutput struct {
	Corpora []CorpusInfo `json:"corpora"`
}

// CorpusInfo describes one built corpus.
type CorpusInfo struct {
	Name       string `json:"name"`
	Tool       string `json:"tool"`
	Kind       string `json:"kind"`
	Rows       int    `json:"rows"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
	BuildID    string `json:"build_id"`
	BuiltAt    string `json:"built_at"`
}

// PrepareContextInput defines the input schema for prepare_context.
type PrepareContextInput struct {
	Request string `json:"request" jsonschema:"the user's design or documentation request"`
	TopK    int    `json:"top_k,omitempty" jsonschema:"results per corpus, default 5"`
}

// PrepareContextOutput defines the output schema for prepare_context.
type PrepareContextOutput struct {
	Sections []CorpusSection `json:"sections"`
}

// CorpusSection is the result of one corpus in prepare_context.
type CorpusSection struct {
	Corpus  string           `json:"corpus"`
	Answer  string           `json:"answer"`
	Context string           `json:"context"`
	Results []map[string]any `json:"results"`
	Error   string           `json:"error,omitempty"`
}

// Server is the MCP server for docrag.
type Server struct {
	mcp     *mcp.Server
	corpora []Corpus
	byTool  map[string]Corpus
	logger  *slog.Logger
	metrics *telemetry.QueryMetrics
}

// NewServer creates a server exposing one search tool per corpus.
func NewServer(corpora []Corpus) (*Server, error) {
	if len(corpora) == 0 {
		return nil, errors.New("at least one built corpus is required")
	}

	s := &Server{
		corpora: corpora,
		byTool:  make(map[string]Corpus, len(corpora)),
		logger:  slog.Default(),
	}
	for _, c := range corpora {
		if c.Searcher == nil {
			return nil, fmt.Errorf("corpus %s has no searcher", c.Name)
		}
		s.byTool[ToolName(c.Name)] = c
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "docrag",
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()

	return s, nil
}

// SetMetrics records every search in m. A nil m disables recording.
func (s *Server) SetMetrics(m *telemetry.QueryMetrics) {
	s.metrics = m
}

// ToolName returns the search tool name for a corpus.
func ToolName(corpus string) string {
	return searchToolPrefix + strings.ReplaceAll(corpus, "-", "_")
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// ListTools returns the registered tools in registration order.
func (s *Server) ListTools() []ToolInfo {
	tools := make([]ToolInfo, 0, len(s.corpora)+2)
	for _, c := range s.corpora {
		tools = append(tools, ToolInfo{Name: ToolName(c.Name), Description: describe(c)})
	}
	tools = append(tools,
		ToolInfo{
			Name:        ToolListCorpora,
			Description: "List the corpora that can be searched, with row counts and the embedding model each was built with.",
		},
		ToolInfo{
			Name: ToolPrepareContext,
			Description: "Gather context for a request from every corpus at once. Call this first before answering a " +
				"design or documentation request, then cite the returned passages.",
		},
	)
	return tools
}

func describe(c Corpus) string {
	if c.Description != "" {
		return c.Description
	}
	switch c.Kind {
	case "templates":
		return fmt.Sprintf("Search the %s template catalogue. Returns whole template records (title, type, category, properties, children) "+
			"ranked by similarity. Treat results as the source of truth and do not invent templates or properties.", c.Name)
	case "articles":
		return fmt.Sprintf("Search the %s articles. Returns article chunks with title, chunk_index and text.", c.Name)
	default:
		return fmt.Sprintf("Retrieve authoritative passages from the %s documentation. Returns chunks with section, anchor, "+
			"level, path, tags, part_index and text suitable for citation.", c.Name)
	}
}

func (s *Server) registerTools() {
	tools := s.ListTools()
	for i, c := range s.corpora {
		mcp.AddTool(s.mcp, &mcp.Tool{
			Name:        tools[i].Name,
			Description: tools[i].Description,
		}, s.searchHandler(c))
		s.logger.Debug("registered tool", slog.String("name", tools[i].Name))
	}

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolListCorpora,
		Description: tools[len(s.corpora)].Description,
	}, s.mcpListCorporaHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolPrepareContext,
		Description: tools[len(s.corpora)+1].Description,
	}, s.mcpPrepareContextHandler)

	s.logger.Info("mcp_tools_registered", slog.Int("count", len(tools)))
}

func (s *Server) searchHandler(c Corpus) func(context.Context, *mcp.CallToolRequest, SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
		out, err := s.searchCorpus(ctx, c, input)
		if err != nil {
			return nil, SearchOutput{}, MapError(err)
		}
		return nil, out, nil
	}
}

func (s *Server) mcpListCorporaHandler(_ context.Context, _ *mcp.CallToolRequest, _ ListCorporaInput) (*mcp.CallToolResult, ListCorporaOutput, error) {
	return nil, s.listCorpora(), nil
}

func (s *Server) mcpPrepareContextHandler(ctx context.Context, _ *mcp.CallToolRequest, input PrepareContextInput) (*mcp.CallToolResult, PrepareContextOutput, error) {
	out, err := s.prepareContext(ctx, input)
	if err != nil {
		return nil, PrepareContextOutput{}, MapError(err)
	}
	return nil, out, nil
}

// CallTool invokes a tool by name with JSON-style arguments.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case ToolListCorpora:
		return s.listCorpora(), nil
	case ToolPrepareContext:
		var in PrepareContextInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		return s.prepareContext(ctx, in)
	}

	c, ok := s.byTool[name]
	if !ok {
		return nil, NewMethodNotFoundError(name)
	}
	var in SearchInput
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	return s.searchCorpus(ctx, c, in)
}

func decodeArgs(args map[string]any, dst any) error {
	data, err := json.Marshal(args)
	if err != nil {
		return NewInvalidParamsError(err.Error())
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return NewInvalidParamsError(err.Error())
	}
	return nil
}

func (s *Server) searchCorpus(ctx context.Context, c Corpus, input SearchInput) (SearchOutput, error) {
	if strings.TrimSpace(input.Query) == "" {
		return SearchOutput{}, NewInvalidParamsError("query parameter is required")
	}
	topK := min(input.TopK, maxTopK)

	start := time.Now()
	requestID := uuid.NewString()[:8]
	s.logger.Info("search_started",
		slog.String("request_id", requestID),
		slog.String("corpus", c.Name),
		slog.Int("top_k", topK))

	text, results, err := c.Searcher.Context(ctx, input.Query, topK)
	if err != nil {
		s.logger.Error("search_failed",
			slog.String("request_id", requestID),
			slog.String("corpus", c.Name),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()))
		return SearchOutput{}, err
	}

	latency := time.Since(start)
	s.logger.Info("search_completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", latency),
		slog.Int("result_count", len(results)))

	if s.metrics != nil {
		s.metrics.Record(telemetry.QueryEvent{
			Corpus:      c.Name,
			Query:       input.Query,
			ResultCount: len(results),
			Latency:     latency,
		})
	}

	return toOutput(c.Name, text, results), nil
}

func toOutput(corpus, text string, results []search.Result) SearchOutput {
	out := SearchOutput{
		Answer:  answerNone,
		Context: text,
		Results: make([]map[string]any, 0, len(results)),
	}
	if len(results) > 0 {
		out.Answer = fmt.Sprintf(answerFound, len(results), corpus)
	}
	for _, r := range results {
		row := make(map[string]any, len(r.Fields)+1)
		for k, v := range r.Fields {
			row[k] = v
		}
		row[search.ScoreField] = float64(r.Score)
		out.Results = append(out.Results, row)
	}
	return out
}

func (s *Server) listCorpora() ListCorporaOutput {
	out := ListCorporaOutput{Corpora: make([]CorpusInfo, 0, len(s.corpora))}
	for _, c := range s.corpora {
		m := c.Searcher.Corpus().Manifest
		out.Corpora = append(out.Corpora, CorpusInfo{
			Name:       c.Name,
			Tool:       ToolName(c.Name),
			Kind:       m.Kind,
			Rows:       m.Rows,
			Model:      m.Model,
			Dimensions: m.Dimensions,
			BuildID:    m.BuildID,
			BuiltAt:    m.CreatedAt.Format(time.RFC3339),
		})
	}
	sort.Slice(out.Corpora, func(i, j int) bool { return out.Corpora[i].Name < out.Corpora[j].Name })
	return out
}

// prepareContext queries every corpus with the request. A failing corpus
// is reported in its section and does not fail the call.
func (s *Server) prepareContext(ctx context.Context, input PrepareContextInput) (PrepareContextOutput, error) {
	if strings.TrimSpace(input.Request) == "" {
		return PrepareContextOutput{}, NewInvalidParamsError("request parameter is required")
	}

	out := PrepareContextOutput{Sections: make([]CorpusSection, 0, len(s.corpora))}
	for _, c := range s.corpora {
		if err := ctx.Err(); err != nil {
			return PrepareContextOutput{}, err
		}
		res, err := s.searchCorpus(ctx, c, SearchInput{Query: input.Request, TopK: input.TopK})
		if err != nil {
			out.Sections = append(out.Sections, CorpusSection{
				Corpus:  c.Name,
				Answer:  "Error searching " + c.Name + ".",
				Results: []map[string]any{},
				Error:   MapError(err).Message,
			})
			continue
		}
		out.Sections = append(out.Sections, CorpusSection{
			Corpus:  c.Name,
			Answer:  res.Answer,
			Context: res.Context,
			Results: res.Results,
		})
	}
	return out, nil
}

// Serve runs the server until ctx is done.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("mcp_server_starting", slog.String("transport", transport))

	switch transport {
	case "", "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
		} else {
			s.logger.Info("mcp_server_stopped")
		}
		return err
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}
