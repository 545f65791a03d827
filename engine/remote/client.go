package remote

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tailored-agentic-units/llamachat/engine"
)

type pieceKey struct {
	token   engine.Token
	special bool
}

// Client is an engine.Model and engine.Vision backed by a remote server.
// The engine interfaces carry no context, so every call uses the context
// given to Dial.
type Client struct {
	ctx     context.Context
	clients map[string]*connect.Client[structpb.Struct, structpb.Struct]

	bos, eot         engine.Token
	addBOS           bool
	contextSize      int
	trainContextSize int
	chatTemplate     string
	vision           bool

	mu       sync.Mutex
	pieces   map[pieceKey]string
	eog      map[engine.Token]bool
	samplers []any
}

// Dial connects to the engine served at baseURL and fetches its
// properties.
func Dial(ctx context.Context, httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) (*Client, error) {
	baseURL = strings.TrimRight(baseURL, "/")
	c := &Client{
		ctx:     ctx,
		clients: make(map[string]*connect.Client[structpb.Struct, structpb.Struct]),
		pieces:  make(map[pieceKey]string),
		eog:     make(map[engine.Token]bool),
	}
	for _, procedure := range []string{
		ProcedureInfo, ProcedureTokenize, ProcedurePiece, ProcedureIsEOG,
		ProcedureDecode, ProcedureSynchronize, ProcedureTruncate,
		ProcedureNewSampler, ProcedureSample, ProcedureAccept,
		ProcedureEmbed, ProcedureClose,
	} {
		c.clients[procedure] = connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+procedure, opts...)
	}

	info, err := c.call(ProcedureInfo, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", baseURL, err)
	}
	c.bos = engine.Token(number(info, "bos"))
	c.eot = engine.Token(number(info, "eot"))
	c.addBOS = boolean(info, "add_bos")
	c.contextSize = number(info, "context_size")
	c.trainContextSize = number(info, "train_context_size")
	c.chatTemplate = str(info, "chat_template")
	c.vision = boolean(info, "vision")
	return c, nil
}

func (c *Client) call(procedure string, fields map[string]any) (*structpb.Struct, error) {
	msg, err := newStruct(fields)
	if err != nil {
		return nil, err
	}
	resp, err := c.clients[procedure].CallUnary(c.ctx, connect.NewRequest(msg))
	if err != nil {
		return nil, fromConnect(err)
	}
	return resp.Msg, nil
}

// HasVision reports whether the server has a vision model loaded.
func (c *Client) HasVision() bool { return c.vision }

func (c *Client) BOS() engine.Token     { return c.bos }
func (c *Client) EOT() engine.Token     { return c.eot }
func (c *Client) AddBOS() bool          { return c.addBOS }
func (c *Client) ContextSize() int      { return c.contextSize }
func (c *Client) TrainContextSize() int { return c.trainContextSize }
func (c *Client) ChatTemplate() string  { return c.chatTemplate }

// IsEOG asks the server once per token and remembers the answer. A
// failed call reports false.
func (c *Client) IsEOG(t engine.Token) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if eog, ok := c.eog[t]; ok {
		return eog
	}
	resp, err := c.call(ProcedureIsEOG, map[string]any{"token": int(t)})
	if err != nil {
		return false
	}
	c.eog[t] = boolean(resp, "eog")
	return c.eog[t]
}

// Piece is cached like IsEOG. A failed call renders as "".
func (c *Client) Piece(t engine.Token, special bool) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := pieceKey{t, special}
	if p, ok := c.pieces[key]; ok {
		return p
	}
	resp, err := c.call(ProcedurePiece, map[string]any{"token": int(t), "special": special})
	if err != nil {
		return ""
	}
	c.pieces[key] = str(resp, "piece")
	return c.pieces[key]
}

func (c *Client) Tokenize(text string, addSpecial, parseSpecial bool) ([]engine.Token, error) {
	resp, err := c.call(ProcedureTokenize, map[string]any{
		"text":          text,
		"add_special":   addSpecial,
		"parse_special": parseSpecial,
	})
	if err != nil {
		return nil, err
	}
	return unpackTokens(str(resp, "tokens"))
}

func (c *Client) Decode(batch engine.Batch) error {
	_, err := c.call(ProcedureDecode, map[string]any{
		"tokens": packTokens(batch.Tokens),
		"pos":    batch.Pos,
		"seq_id": batch.SeqID,
	})
	return err
}

func (c *Client) Synchronize() error {
	_, err := c.call(ProcedureSynchronize, nil)
	return err
}

func (c *Client) Truncate(n int) error {
	_, err := c.call(ProcedureTruncate, map[string]any{"n": n})
	return err
}

func (c *Client) NewSampler(params engine.SamplerParams) (engine.Sampler, error) {
	resp, err := c.call(ProcedureNewSampler, samplerFields(params))
	if err != nil {
		return nil, err
	}
	id := str(resp, "sampler")
	c.mu.Lock()
	c.samplers = append(c.samplers, id)
	c.mu.Unlock()
	return &sampler{client: c, id: id}, nil
}

func (c *Client) Embed(image []byte, pos int) (int, error) {
	resp, err := c.call(ProcedureEmbed, map[string]any{"image": image, "pos": pos})
	if err != nil {
		return 0, err
	}
	return number(resp, "positions"), nil
}

// Close releases the samplers this client created on the server.
func (c *Client) Close() error {
	c.mu.Lock()
	ids := c.samplers
	c.samplers = nil
	c.mu.Unlock()

	_, err := c.call(ProcedureClose, map[string]any{"samplers": ids})
	return err
}

type sampler struct {
	client *Client
	id     string
	err    error
}

// Sample reports any failure from a preceding Accept, since Accept has
// no error return.
func (s *sampler) Sample() (engine.Token, error) {
	if s.err != nil {
		err := s.err
		s.err = nil
		return 0, err
	}
	resp, err := s.client.call(ProcedureSample, map[string]any{"sampler": s.id})
	if err != nil {
		return 0, err
	}
	return engine.Token(number(resp, "token")), nil
}

func (s *sampler) Accept(t engine.Token) {
	if _, err := s.client.call(ProcedureAccept, map[string]any{"sampler": s.id, "token": int(t)}); err != nil {
		s.err = fmt.Errorf("accept: %w", err)
	}
}

var (
	_ engine.Model  = (*Client)(nil)
	_ engine.Vision = (*Client)(nil)
)
