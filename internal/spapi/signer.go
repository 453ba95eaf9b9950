package spapi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
)

// signingService is the service name SP-API requires in the SigV4 scope.
const signingService = "execute-api"

// Signer applies AWS SigV4 to outgoing SP-API requests.
type Signer struct {
	v4 *v4.Signer
}

func NewSigner() *Signer {
	return &Signer{v4: v4.NewSigner()}
}

// Sign computes the payload hash and signs the request for the given region.
// Temporary credentials carry their session token into the signature
// automatically.
func (s *Signer) Sign(ctx context.Context, req *http.Request, body []byte, creds aws.Credentials, region string) error {
	sum := sha256.Sum256(body)
	payloadHash := hex.EncodeToString(sum[:])

	err := s.v4.SignHTTP(ctx, creds, req, payloadHash, signingService, region, time.Now().UTC())
	if err != nil {
		return NewError(KindInternalError, "signing request", err)
	}
	return nil
}
