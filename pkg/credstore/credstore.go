// Package credstore fetches the administrative credential pair from AWS
// Secrets Manager and memoizes it for the process lifetime.
package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	sm "github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// ErrSecretUnavailable indicates the backing store was unreachable or the
// secret is malformed. The condition is never cached: the next Get retries.
var ErrSecretUnavailable = errors.New("admin credential unavailable")

// Credential is the single administrative identity. Exactly one exists
// system-wide; it is treated as static until redeployment.
type Credential struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// secretsAPI is the subset of the Secrets Manager client used by Accessor.
// Defined as an interface so tests can inject a mock.
type secretsAPI interface {
	GetSecretValue(ctx context.Context, in *sm.GetSecretValueInput, opts ...func(*sm.Options)) (*sm.GetSecretValueOutput, error)
}

// Accessor reads the admin credential from Secrets Manager. Successful reads
// are memoized forever; there is no TTL-based expiry, so rotating the secret
// requires a process restart.
type Accessor struct {
	client     secretsAPI
	secretName string
	log        *slog.Logger

	mu     sync.Mutex
	cached *Credential
}

// New returns an Accessor reading the named secret via the given client.
func New(client *sm.Client, secretName string, log *slog.Logger) *Accessor {
	return newWithAPI(client, secretName, log)
}

// newWithAPI constructs an Accessor with an injected API for unit testing.
func newWithAPI(client secretsAPI, secretName string, log *slog.Logger) *Accessor {
	if log == nil {
		log = slog.Default()
	}
	return &Accessor{client: client, secretName: secretName, log: log}
}

// Get returns the admin credential, fetching it from the store on first use.
// Only successful fetches are cached; an outage or malformed secret surfaces
// as ErrSecretUnavailable and leaves the next call free to retry.
func (a *Accessor) Get(ctx context.Context) (Credential, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cached != nil {
		return *a.cached, nil
	}

	out, err := a.client.GetSecretValue(ctx, &sm.GetSecretValueInput{
		SecretId: aws.String(a.secretName),
	})
	if err != nil {
		return Credential{}, fmt.Errorf("%w: fetching %s: %s", ErrSecretUnavailable, a.secretName, err)
	}

	var cred Credential
	if err := json.Unmarshal([]byte(aws.ToString(out.SecretString)), &cred); err != nil {
		return Credential{}, fmt.Errorf("%w: decoding %s: %s", ErrSecretUnavailable, a.secretName, err)
	}
	if cred.Username == "" || cred.Password == "" {
		return Credential{}, fmt.Errorf("%w: secret %s is missing username or password", ErrSecretUnavailable, a.secretName)
	}

	a.log.Debug("admin credential loaded", "secret", a.secretName, "username", cred.Username)
	a.cached = &cred
	return cred, nil
}
