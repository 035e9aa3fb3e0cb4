package eth

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/moduls/core"
)

// SignText produces an EIP-191 personal_sign signature with v in {27, 28}
func SignText(key *ecdsa.PrivateKey, text string) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash([]byte(text)), key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// RecoverText returns the address that produced a personal_sign signature
func RecoverText(text string, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes: %w", crypto.SignatureLength, core.ErrInvalidSignature)
	}

	normalized := make([]byte, crypto.SignatureLength)
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(text)), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover signer: %w", core.ErrInvalidSignature)
	}

	return crypto.PubkeyToAddress(*pub), nil
}

// VerifyText checks that a hex signature over text was made by expected
func VerifyText(text, signature string, expected common.Address) error {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return fmt.Errorf("failed to decode signature: %w", core.ErrInvalidSignature)
	}

	signer, err := RecoverText(text, sig)
	if err != nil {
		return err
	}
	if signer != expected {
		return core.ErrInvalidSignature
	}

	return nil
}
