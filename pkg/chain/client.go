package chain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/decred/slog"
)

// Caller is the narrow RPC surface the higher layers build on. result must be
// a pointer; it is left untouched when the call errors.
type Caller interface {
	Call(method string, params []interface{}, result interface{}) error
}

// Config selects between the REST JSON-RPC endpoint of a running daemon and
// shelling out to the chain CLI binary.
type Config struct {
	URL      string // e.g. http://127.0.0.1:22778
	User     string
	Password string
	UseREST  bool
	CLI      string // CLI command name, e.g. "verus" or "chips-cli"
	Timeout  time.Duration
}

// Client talks JSON-RPC to the CHIPS/Verus daemon. Every call may take
// seconds; callers must not hold locks across one.
type Client struct {
	cfg  Config
	http *http.Client
	log  slog.Logger
}

var (
	// ErrEmptyResult is returned when the daemon answers with a null result.
	ErrEmptyResult = errors.New("chain: empty RPC result")
)

// RPCError is a non-null error object in a JSON-RPC response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("chain: rpc error %d: %s", e.Code, e.Message)
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// NewClient creates a client; it performs no I/O until the first call.
func NewClient(cfg Config, log slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
		log:  log,
	}
}

// Call performs one RPC, unmarshalling the result into result when non-nil.
func (c *Client) Call(method string, params []interface{}, result interface{}) error {
	if c.cfg.UseREST {
		return c.callREST(method, params, result)
	}
	return c.callCLI(method, params, result)
}

func (c *Client) callREST(method string, params []interface{}, result interface{}) error {
	if params == nil {
		params = []interface{}{}
	}
	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "1.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("chain: %s: marshal request: %w", method, err)
	}

	httpReq, err := http.NewRequest("POST", c.cfg.URL, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("chain: %s: create request: %w", method, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.User != "" {
		httpReq.SetBasicAuth(c.cfg.User, c.cfg.Password)
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("chain: %s: http request: %w", method, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("chain: %s: read body: %w", method, err)
	}

	var resp rpcResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("chain: %s: unmarshal response (http %d): %w",
			method, httpResp.StatusCode, err)
	}
	if resp.Error != nil {
		return fmt.Errorf("%s: %w", method, resp.Error)
	}
	return decodeResult(method, resp.Result, result)
}

// callCLI shells out to the configured chain CLI, the way the daemon's own
// tooling does. Composite params are passed as JSON arguments.
func (c *Client) callCLI(method string, params []interface{}, result interface{}) error {
	args := []string{method}
	for _, p := range params {
		switch v := p.(type) {
		case string:
			args = append(args, v)
		default:
			b, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("chain: %s: marshal param: %w", method, err)
			}
			args = append(args, string(b))
		}
	}

	cmd := exec.Command(c.cfg.CLI, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return fmt.Errorf("chain: %s: cli: %s", method, msg)
	}

	out := bytes.TrimSpace(stdout.Bytes())
	if len(out) == 0 {
		return decodeResult(method, nil, result)
	}
	// The CLI prints bare strings (txids, opids) without JSON quoting.
	if !json.Valid(out) {
		out, _ = json.Marshal(string(out))
	}
	return decodeResult(method, out, result)
}

func decodeResult(method string, raw json.RawMessage, result interface{}) error {
	if result == nil {
		return nil
	}
	if len(raw) == 0 || string(raw) == "null" {
		return fmt.Errorf("chain: %s: %w", method, ErrEmptyResult)
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("chain: %s: unmarshal result: %w", method, err)
	}
	return nil
}
