package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"

	"github.com/joseph-ayodele/certificate-verifier/internal/auth"
	"github.com/joseph-ayodele/certificate-verifier/internal/common"
	"github.com/joseph-ayodele/certificate-verifier/internal/extract"
	"github.com/joseph-ayodele/certificate-verifier/internal/pipeline"
	"github.com/joseph-ayodele/certificate-verifier/internal/session"
	"github.com/joseph-ayodele/certificate-verifier/internal/verdict"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

type Verifier interface {
	Verify(ctx context.Context, doc extract.Document) (verdict.Result, error)
}

type VerificationService struct {
	verifier   Verifier
	signingKey string
	issuer     string
	maxBytes   int64
	logger     *slog.Logger
}

func NewVerificationService(v Verifier, signingKey, issuer string, maxBytes int64, logger *slog.Logger) *VerificationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &VerificationService{verifier: v, signingKey: signingKey, issuer: issuer, maxBytes: maxBytes, logger: logger}
}

// Verify expects {filename, media_type, content} with content base64 encoded
// and answers with the result object plus a message.
func (s *VerificationService) Verify(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sess, err := auth.SessionFromBearer(bearerFromMetadata(ctx), s.signingKey, s.issuer)
	if err != nil {
		return nil, s.statusError(common.UnauthenticatedError())
	}
	ctx = session.WithSession(ctx, sess)

	f := req.GetFields()
	content := f["content"].GetStringValue()
	if content == "" {
		return nil, s.statusError(common.MissingDocumentError())
	}
	data, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return nil, errInvalidArg("content must be base64")
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return nil, status.Errorf(codes.ResourceExhausted, "file exceeds %d MB", s.maxBytes>>20)
	}

	doc := extract.SniffDocument(f["filename"].GetStringValue(), f["media_type"].GetStringValue(), data)
	res, err := s.verifier.Verify(ctx, doc)
	if err != nil {
		return nil, s.statusError(err)
	}

	raw, err := json.Marshal(res)
	if err != nil {
		s.logger.Error("result encode failed", "error", err)
		return nil, status.Error(codes.Internal, "result encode failed")
	}
	result := new(structpb.Struct)
	if err := protojson.Unmarshal(raw, result); err != nil {
		s.logger.Error("result encode failed", "error", err)
		return nil, status.Error(codes.Internal, "result encode failed")
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"result":  structpb.NewStructValue(result),
		"message": structpb.NewStringValue(res.Message()),
	}}, nil
}

// statusError keeps the gRPC code of the taxonomy but carries the
// user-facing notice as the message.
func (s *VerificationService) statusError(err error) error {
	st := status.Convert(common.ToGRPC(err))
	return status.Error(st.Code(), pipeline.Notice(err))
}

func errInvalidArg(msg string) error {
	return status.Error(codes.InvalidArgument, msg)
}

func bearerFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if v := md.Get("authorization"); len(v) > 0 {
		return v[0]
	}
	return ""
}
