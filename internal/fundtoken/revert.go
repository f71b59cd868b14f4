package fundtoken

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"

	"fundService/internal/model"
)

var ownableUnauthorizedSelector = crypto.Keccak256([]byte("OwnableUnauthorizedAccount(address)"))[:4]

// writeError classifies a failed estimate/send/receipt into the chain write kinds.
func writeError(step string, err error) error {
	reason, data, reverted := revertReason(err)
	if !reverted {
		return fmt.Errorf("%w: %s: %w", model.ErrChainWrite, step, err)
	}

	kind := model.ErrRejected
	if isOwnableRevert(reason, data) {
		kind = model.ErrUnauthorized
	}
	if reason == "" {
		return fmt.Errorf("%w: %w: %s: execution reverted", model.ErrChainWrite, kind, step)
	}
	return fmt.Errorf("%w: %w: %s: execution reverted: %s", model.ErrChainWrite, kind, step, reason)
}

// revertReason extracts the revert reason from an RPC error, preferring the
// ABI-encoded revert data over the node's message text.
func revertReason(err error) (string, []byte, bool) {
	var data []byte
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if raw, ok := dataErr.ErrorData().(string); ok {
			if decoded, decodeErr := hexutil.Decode(raw); decodeErr == nil {
				data = decoded
				if reason, unpackErr := abi.UnpackRevert(decoded); unpackErr == nil {
					return reason, data, true
				}
			}
		}
	}

	msg := err.Error()
	idx := strings.Index(msg, "execution reverted")
	if idx < 0 {
		if len(data) > 0 {
			return "", data, true
		}
		return "", nil, false
	}
	reason := strings.TrimPrefix(msg[idx+len("execution reverted"):], ":")
	return strings.TrimSpace(reason), data, true
}

func isOwnableRevert(reason string, data []byte) bool {
	if strings.Contains(reason, "caller is not the owner") {
		return true
	}
	return len(data) >= 4 && bytes.Equal(data[:4], ownableUnauthorizedSelector)
}
