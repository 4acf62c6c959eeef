package ual

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/crypto/sha3"

	apperr "github.com/BogBogdan/ot-node/internal/pkg/errors"
)

const Prefix = "did:dkg:"

var contractPattern = regexp.MustCompile(`^0x[0-9a-fA-F]+$`)

// UAL is a parsed Universal Asset Locator:
// did:dkg:<blockchain>:<contract>/<collectionId>[/<assetId>].
type UAL struct {
	Blockchain   string
	Contract     string
	CollectionID uint64
	AssetID      uint64
	HasAsset     bool
}

func Parse(s string) (UAL, error) {
	var u UAL
	raw := strings.TrimSpace(s)
	if !strings.HasPrefix(raw, Prefix) {
		return u, notUAL(s)
	}
	parts := strings.Split(strings.TrimPrefix(raw, Prefix), "/")
	if len(parts) < 2 || len(parts) > 3 {
		return u, notUAL(s)
	}
	head := parts[0]
	i := strings.LastIndex(head, ":")
	if i <= 0 || i == len(head)-1 {
		return u, notUAL(s)
	}
	u.Blockchain = head[:i]
	u.Contract = head[i+1:]
	if !contractPattern.MatchString(u.Contract) {
		return u, notUAL(s)
	}
	kc, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return u, notUAL(s)
	}
	u.CollectionID = kc
	if len(parts) == 3 {
		ka, err := strconv.ParseUint(parts[2], 10, 64)
		if err != nil {
			return u, notUAL(s)
		}
		u.AssetID = ka
		u.HasAsset = true
	}
	return u, nil
}

func IsUAL(s string) bool {
	_, err := Parse(s)
	return err == nil
}

func Derive(blockchain, contract string, collectionID uint64, assetID ...uint64) string {
	out := fmt.Sprintf("%s%s:%s/%d", Prefix, blockchain, strings.ToLower(contract), collectionID)
	if len(assetID) > 0 {
		out += "/" + strconv.FormatUint(assetID[0], 10)
	}
	return out
}

func (u UAL) String() string {
	if u.HasAsset {
		return Derive(u.Blockchain, u.Contract, u.CollectionID, u.AssetID)
	}
	return Derive(u.Blockchain, u.Contract, u.CollectionID)
}

// Collection drops the asset index.
func (u UAL) Collection() UAL {
	u.AssetID = 0
	u.HasAsset = false
	return u
}

// CollectionUAL returns the collection-level UAL for any UAL string.
func CollectionUAL(s string) (string, error) {
	u, err := Parse(s)
	if err != nil {
		return "", err
	}
	return u.Collection().String(), nil
}

// ParanetID is keccak256(address ‖ uint256(collectionId) [‖ uint256(assetId)]) as 0x-hex,
// matching the on-chain abi.encodePacked derivation.
func ParanetID(contract string, collectionID uint64, assetID ...uint64) (string, error) {
	addr, err := hex.DecodeString(padHex(strings.TrimPrefix(strings.ToLower(contract), "0x")))
	if err != nil {
		return "", apperr.Validation("INVALID_CONTRACT", "invalid contract address %q", contract)
	}
	if len(addr) > 20 {
		return "", apperr.Validation("INVALID_CONTRACT", "contract address %q longer than 20 bytes", contract)
	}
	packed := make([]byte, 0, 20+64)
	packed = append(packed, make([]byte, 20-len(addr))...)
	packed = append(packed, addr...)
	packed = append(packed, uint256(collectionID)...)
	if len(assetID) > 0 {
		packed = append(packed, uint256(assetID[0])...)
	}
	h := sha3.NewLegacyKeccak256()
	h.Write(packed)
	return "0x" + hex.EncodeToString(h.Sum(nil)), nil
}

// ParanetIDFromUAL derives the paranet id of a paranet UAL.
func ParanetIDFromUAL(paranetUAL string) (string, UAL, error) {
	u, err := Parse(paranetUAL)
	if err != nil {
		return "", u, err
	}
	var id string
	if u.HasAsset {
		id, err = ParanetID(u.Contract, u.CollectionID, u.AssetID)
	} else {
		id, err = ParanetID(u.Contract, u.CollectionID)
	}
	return id, u, err
}

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]`)

// ParanetRepositoryName is the logical triple-store repository backing a paranet.
func ParanetRepositoryName(paranetUAL string) string {
	return nonAlnum.ReplaceAllString(strings.TrimPrefix(paranetUAL, Prefix), "-")
}

func uint256(v uint64) []byte {
	b := new(big.Int).SetUint64(v).Bytes()
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}

func padHex(s string) string {
	if len(s)%2 == 1 {
		return "0" + s
	}
	return s
}

func notUAL(s string) error {
	return apperr.Validation("INVALID_UAL", "%s is not a UAL", s)
}
