package auth

import (
	"crypto/ecdsa"
	"errors"
	"strconv"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/lru"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signed request headers.
const (
	// SignatureHeader carries an EIP-191 signature over RequestPayload.
	SignatureHeader = "X-Signature"
	// SignerHeader names the address expected to have signed.
	SignerHeader = "X-Signer"
	// DeadlineHeader is the unix second after which the signature is void.
	DeadlineHeader = "X-Signature-Deadline"
)

var (
	errReplayed         = errors.New("signed request already used")
	errReplayWindowFull = errors.New("too many signed requests in flight")
)

// RequestPayload is the message a caller signs: the method and request
// target, the deadline and the raw body. Binding the target keeps a
// signature from being reused on another endpoint or resource.
func RequestPayload(method, target string, deadline int64, body []byte) []byte {
	head := method + " " + target + "\n" + strconv.FormatInt(deadline, 10) + "\n"
	out := make([]byte, 0, len(head)+len(body))
	out = append(out, head...)
	return append(out, body...)
}

// SignRequest signs the payload of a request with key.
func SignRequest(key *ecdsa.PrivateKey, method, target string, deadline int64, body []byte) (string, error) {
	return SignEIP191(RequestPayload(method, target, deadline, body), key)
}

// replayCache remembers accepted requests until their deadline passes.
type replayCache struct {
	mu       sync.Mutex
	seen     lru.BasicLRU[common.Hash, int64]
	capacity int
}

func newReplayCache(capacity int) *replayCache {
	return &replayCache{seen: lru.NewBasicLRU[common.Hash, int64](capacity), capacity: capacity}
}

// claim records the request identified by signer and payload. It fails when
// the same request was accepted before and has not expired.
func (c *replayCache) claim(signer common.Address, payload []byte, deadline, now int64) error {
	key := crypto.Keccak256Hash(signer.Bytes(), payload)

	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		_, expires, ok := c.seen.GetOldest()
		if !ok || expires >= now {
			break
		}
		c.seen.RemoveOldest()
	}
	if _, ok := c.seen.Peek(key); ok {
		return errReplayed
	}
	// evicting a live entry would reopen it for replay
	if c.seen.Len() >= c.capacity {
		return errReplayWindowFull
	}
	c.seen.Add(key, deadline)
	return nil
}
