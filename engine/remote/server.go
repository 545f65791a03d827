package remote

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tailored-agentic-units/llamachat/engine"
)

type server struct {
	model  engine.Model
	vision engine.Vision

	mu       sync.Mutex
	samplers map[string]engine.Sampler
}

// NewHandler serves model, and vision when it is non-nil, under the
// returned path prefix. Calls are serialised since engine
// implementations are single-threaded.
func NewHandler(model engine.Model, vision engine.Vision, opts ...connect.HandlerOption) (string, http.Handler) {
	s := &server{
		model:    model,
		vision:   vision,
		samplers: make(map[string]engine.Sampler),
	}

	procedures := map[string]func(*structpb.Struct) (map[string]any, error){
		ProcedureInfo:        s.info,
		ProcedureTokenize:    s.tokenize,
		ProcedurePiece:       s.piece,
		ProcedureIsEOG:       s.isEOG,
		ProcedureDecode:      s.decode,
		ProcedureSynchronize: s.synchronize,
		ProcedureTruncate:    s.truncate,
		ProcedureNewSampler:  s.newSampler,
		ProcedureSample:      s.sample,
		ProcedureAccept:      s.accept,
		ProcedureEmbed:       s.embed,
		ProcedureClose:       s.close,
	}

	mux := http.NewServeMux()
	for procedure, fn := range procedures {
		mux.Handle(procedure, connect.NewUnaryHandler(procedure, s.unary(fn), opts...))
	}
	return "/" + ServiceName + "/", mux
}

func (s *server) unary(fn func(*structpb.Struct) (map[string]any, error)) func(context.Context, *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	return func(_ context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		out, err := fn(req.Msg)
		if err != nil {
			return nil, toConnect(err)
		}
		msg, err := newStruct(out)
		if err != nil {
			return nil, connect.NewError(connect.CodeInternal, err)
		}
		return connect.NewResponse(msg), nil
	}
}

func (s *server) info(*structpb.Struct) (map[string]any, error) {
	return map[string]any{
		"bos":                int(s.model.BOS()),
		"eot":                int(s.model.EOT()),
		"add_bos":            s.model.AddBOS(),
		"context_size":       s.model.ContextSize(),
		"train_context_size": s.model.TrainContextSize(),
		"chat_template":      s.model.ChatTemplate(),
		"vision":             s.vision != nil,
	}, nil
}

func (s *server) tokenize(req *structpb.Struct) (map[string]any, error) {
	tokens, err := s.model.Tokenize(str(req, "text"), boolean(req, "add_special"), boolean(req, "parse_special"))
	if err != nil {
		return nil, err
	}
	return map[string]any{"tokens": packTokens(tokens)}, nil
}

func (s *server) piece(req *structpb.Struct) (map[string]any, error) {
	return map[string]any{
		"piece": s.model.Piece(engine.Token(number(req, "token")), boolean(req, "special")),
	}, nil
}

func (s *server) isEOG(req *structpb.Struct) (map[string]any, error) {
	return map[string]any{"eog": s.model.IsEOG(engine.Token(number(req, "token")))}, nil
}

func (s *server) decode(req *structpb.Struct) (map[string]any, error) {
	tokens, err := unpackTokens(str(req, "tokens"))
	if err != nil {
		return nil, err
	}
	return nil, s.model.Decode(engine.Batch{
		Tokens: tokens,
		Pos:    number(req, "pos"),
		SeqID:  number(req, "seq_id"),
	})
}

func (s *server) synchronize(*structpb.Struct) (map[string]any, error) {
	return nil, s.model.Synchronize()
}

func (s *server) truncate(req *structpb.Struct) (map[string]any, error) {
	return nil, s.model.Truncate(number(req, "n"))
}

func (s *server) newSampler(req *structpb.Struct) (map[string]any, error) {
	sampler, err := s.model.NewSampler(samplerParams(req))
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	s.samplers[id] = sampler
	return map[string]any{"sampler": id}, nil
}

func (s *server) lookupSampler(req *structpb.Struct) (engine.Sampler, error) {
	sampler, ok := s.samplers[str(req, "sampler")]
	if !ok {
		return nil, fmt.Errorf("unknown sampler %q", str(req, "sampler"))
	}
	return sampler, nil
}

func (s *server) sample(req *structpb.Struct) (map[string]any, error) {
	sampler, err := s.lookupSampler(req)
	if err != nil {
		return nil, err
	}
	t, err := sampler.Sample()
	if err != nil {
		return nil, err
	}
	return map[string]any{"token": int(t)}, nil
}

func (s *server) accept(req *structpb.Struct) (map[string]any, error) {
	sampler, err := s.lookupSampler(req)
	if err != nil {
		return nil, err
	}
	sampler.Accept(engine.Token(number(req, "token")))
	return nil, nil
}

func (s *server) embed(req *structpb.Struct) (map[string]any, error) {
	if s.vision == nil {
		return nil, engine.ErrVisionMissing
	}
	image, err := bytesField(req, "image")
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	n, err := s.vision.Embed(image, number(req, "pos"))
	if err != nil {
		return nil, err
	}
	return map[string]any{"positions": n}, nil
}

// close drops the sampler handles the calling client created. The served
// model outlives any one client and is closed by whoever created the
// handler.
func (s *server) close(req *structpb.Struct) (map[string]any, error) {
	for _, id := range req.GetFields()["samplers"].GetListValue().GetValues() {
		delete(s.samplers, id.GetStringValue())
	}
	return nil, nil
}
