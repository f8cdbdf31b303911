package prover

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sync"

	"github.com/consensys/gnark/backend/groth16"
	groth16bn254 "github.com/consensys/gnark/backend/groth16/bn254"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/yourorg/shieldpool/circuits"
)

// Proof is the backend's output: the serialized proof blob plus the
// eight-word calldata layout the verifier contract consumes
// (a.X, a.Y, b.X1, b.X0, b.Y1, b.Y0, c.X, c.Y).
type Proof struct {
	Blob     []byte
	Calldata [8]*big.Int
}

// CalldataHex flattens the calldata into the 0x-hex blob relays expect.
func (p *Proof) CalldataHex() string {
	out := make([]byte, 0, 8*32)
	for _, w := range p.Calldata {
		var word [32]byte
		w.FillBytes(word[:])
		out = append(out, word[:]...)
	}
	return hexutil.Encode(out)
}

// Backend is the opaque proof generator.
type Backend interface {
	Prove(ctx context.Context, in *CircuitInput) (*Proof, error)
}

// Groth16Backend compiles the withdrawal circuit once and caches the
// trusted-setup keys on disk between runs.
type Groth16Backend struct {
	keyDir string

	mu sync.Mutex
	cs constraint.ConstraintSystem
	pk groth16.ProvingKey
	vk groth16.VerifyingKey
}

func NewGroth16Backend(keyDir string) *Groth16Backend {
	return &Groth16Backend{keyDir: keyDir}
}

func (b *Groth16Backend) init() error {
	if b.cs != nil {
		return nil
	}
	cs, err := frontend.Compile(circuits.Curve().ScalarField(), r1cs.NewBuilder, &circuits.Withdraw{})
	if err != nil {
		return fmt.Errorf("compile withdraw circuit: %w", err)
	}
	b.cs = cs

	if err := os.MkdirAll(b.keyDir, 0o755); err != nil {
		return err
	}
	pkPath := filepath.Join(b.keyDir, "withdraw_pk.bin")
	vkPath := filepath.Join(b.keyDir, "withdraw_vk.bin")

	if pkBytes, err := os.ReadFile(pkPath); err == nil {
		vkBytes, err := os.ReadFile(vkPath)
		if err != nil {
			return err
		}
		pk := groth16.NewProvingKey(circuits.Curve())
		vk := groth16.NewVerifyingKey(circuits.Curve())
		if _, err := pk.ReadFrom(bytes.NewReader(pkBytes)); err != nil {
			return fmt.Errorf("read proving key: %w", err)
		}
		if _, err := vk.ReadFrom(bytes.NewReader(vkBytes)); err != nil {
			return fmt.Errorf("read verifying key: %w", err)
		}
		b.pk, b.vk = pk, vk
		return nil
	}

	pk, vk, err := groth16.Setup(cs)
	if err != nil {
		return fmt.Errorf("groth16 setup: %w", err)
	}
	var buf bytes.Buffer
	if _, err := pk.WriteTo(&buf); err != nil {
		return err
	}
	if err := os.WriteFile(pkPath, buf.Bytes(), 0o644); err != nil {
		return err
	}
	buf.Reset()
	if _, err := vk.WriteTo(&buf); err != nil {
		return err
	}
	if err := os.WriteFile(vkPath, buf.Bytes(), 0o644); err != nil {
		return err
	}
	b.pk, b.vk = pk, vk
	return nil
}

func (b *Groth16Backend) Prove(ctx context.Context, in *CircuitInput) (*Proof, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.init(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	full, err := frontend.NewWitness(in.Assignment(), circuits.Curve().ScalarField())
	if err != nil {
		return nil, fmt.Errorf("build witness: %w", err)
	}
	proof, err := groth16.Prove(b.cs, b.pk, full)
	if err != nil {
		return nil, fmt.Errorf("groth16 prove: %w", err)
	}

	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, err
	}
	p := &Proof{Blob: buf.Bytes()}

	bn, ok := proof.(*groth16bn254.Proof)
	if !ok {
		return nil, fmt.Errorf("unexpected proof type %T", proof)
	}
	p.Calldata[0] = bn.Ar.X.BigInt(new(big.Int))
	p.Calldata[1] = bn.Ar.Y.BigInt(new(big.Int))
	p.Calldata[2] = bn.Bs.X.A1.BigInt(new(big.Int))
	p.Calldata[3] = bn.Bs.X.A0.BigInt(new(big.Int))
	p.Calldata[4] = bn.Bs.Y.A1.BigInt(new(big.Int))
	p.Calldata[5] = bn.Bs.Y.A0.BigInt(new(big.Int))
	p.Calldata[6] = bn.Krs.X.BigInt(new(big.Int))
	p.Calldata[7] = bn.Krs.Y.BigInt(new(big.Int))
	return p, nil
}

// Verify checks a proof against the public part of in with the cached
// verifying key. Used as a local sanity check before submission.
func (b *Groth16Backend) Verify(p *Proof, in *CircuitInput) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.init(); err != nil {
		return err
	}
	proof := groth16.NewProof(circuits.Curve())
	if _, err := proof.ReadFrom(bytes.NewReader(p.Blob)); err != nil {
		return fmt.Errorf("read proof blob: %w", err)
	}
	pub, err := frontend.NewWitness(in.Assignment(), circuits.Curve().ScalarField(), frontend.PublicOnly())
	if err != nil {
		return fmt.Errorf("public witness: %w", err)
	}
	if err := groth16.Verify(proof, b.vk, pub); err != nil {
		return fmt.Errorf("verification failed: %w", err)
	}
	return nil
}
