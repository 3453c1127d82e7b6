package config

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"curvemarket/native/curve"
	"curvemarket/native/market"
)

const (
	CurveQuadratic = "quadratic"
	CurveAsymptote = "asymptote"

	PayTokenNative = "native"
	PayTokenERC20  = "erc20"
)

// CurveConfig selects the price curve family and its parameters. All numeric
// parameters are decimal strings so curve constants are not bounded by int64.
type CurveConfig struct {
	Family      string `toml:"Family"`
	Numerator   string `toml:"Numerator"`
	Denominator string `toml:"Denominator"`
	Cap         string `toml:"Cap"`
	Scale       string `toml:"Scale"`
}

// FeeConfig mirrors market.FeePolicy with hex-encoded recipient addresses.
// Rates are parts of market.FeeDenominator.
type FeeConfig struct {
	AppOwnerBuyFee      uint64 `toml:"AppOwnerBuyFee"`
	AppOwnerSellFee     uint64 `toml:"AppOwnerSellFee"`
	AppOwnerMortgageFee uint64 `toml:"AppOwnerMortgageFee"`
	NFTOwnerBuyFee      uint64 `toml:"NFTOwnerBuyFee"`
	NFTOwnerSellFee     uint64 `toml:"NFTOwnerSellFee"`
	PlatformMortgageFee uint64 `toml:"PlatformMortgageFee"`
	AppOwnerRecipient   string `toml:"AppOwnerRecipient"`
	PlatformRecipient   string `toml:"PlatformRecipient"`
}

type Config struct {
	ListenAddress string      `toml:"ListenAddress"`
	DataDir       string      `toml:"DataDir"`
	Environment   string      `toml:"Environment"`
	PayTokenMode  string      `toml:"PayTokenMode"`
	VaultAddress  string      `toml:"VaultAddress"`
	Curve         CurveConfig `toml:"Curve"`
	Fees          FeeConfig   `toml:"Fees"`
}

// defaultVault is the address the market vault defaults to when the config
// file does not override it.
const defaultVault = "0x0000000000000000000000000000006d61726b6574"

func defaultConfig() *Config {
	return &Config{
		ListenAddress: ":8546",
		DataDir:       "./market-data",
		Environment:   "local",
		PayTokenMode:  PayTokenNative,
		VaultAddress:  defaultVault,
		Curve: CurveConfig{
			Family:      CurveQuadratic,
			Numerator:   "1",
			Denominator: "1",
		},
	}
}

// Load loads the configuration from the given path, creating a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := defaultConfig()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func createDefault(path string) (*Config, error) {
	cfg := defaultConfig()
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration without building any components.
func (c *Config) Validate() error {
	switch strings.TrimSpace(c.PayTokenMode) {
	case PayTokenNative, PayTokenERC20:
	default:
		return fmt.Errorf("config: unknown pay token mode %q", c.PayTokenMode)
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir required")
	}
	if _, err := ParseAddress(c.VaultAddress); err != nil {
		return fmt.Errorf("config: vault address: %w", err)
	}
	if _, err := c.BuildCurve(); err != nil {
		return err
	}
	if _, err := c.FeePolicy(); err != nil {
		return err
	}
	return nil
}

// BuildCurve constructs the configured price curve.
func (c *Config) BuildCurve() (curve.PriceCurve, error) {
	switch strings.TrimSpace(c.Curve.Family) {
	case CurveQuadratic, "":
		numerator, err := parseBig(c.Curve.Numerator, "1")
		if err != nil {
			return nil, fmt.Errorf("config: curve numerator: %w", err)
		}
		denominator, err := parseBig(c.Curve.Denominator, "1")
		if err != nil {
			return nil, fmt.Errorf("config: curve denominator: %w", err)
		}
		return curve.NewQuadratic(numerator, denominator)
	case CurveAsymptote:
		capValue, err := parseBig(c.Curve.Cap, "")
		if err != nil {
			return nil, fmt.Errorf("config: curve cap: %w", err)
		}
		scale, err := parseBig(c.Curve.Scale, "")
		if err != nil {
			return nil, fmt.Errorf("config: curve scale: %w", err)
		}
		return curve.NewAsymptote(capValue, scale)
	default:
		return nil, fmt.Errorf("config: unknown curve family %q", c.Curve.Family)
	}
}

// FeePolicy builds the market fee policy from the config, resolving recipient
// addresses. Recipients may be omitted when their rates are zero.
func (c *Config) FeePolicy() (market.FeePolicy, error) {
	policy := market.FeePolicy{
		AppOwnerBuyFee:      c.Fees.AppOwnerBuyFee,
		AppOwnerSellFee:     c.Fees.AppOwnerSellFee,
		AppOwnerMortgageFee: c.Fees.AppOwnerMortgageFee,
		NFTOwnerBuyFee:      c.Fees.NFTOwnerBuyFee,
		NFTOwnerSellFee:     c.Fees.NFTOwnerSellFee,
		PlatformMortgageFee: c.Fees.PlatformMortgageFee,
	}
	if strings.TrimSpace(c.Fees.AppOwnerRecipient) != "" {
		recipient, err := ParseAddress(c.Fees.AppOwnerRecipient)
		if err != nil {
			return market.FeePolicy{}, fmt.Errorf("config: app owner recipient: %w", err)
		}
		policy.AppOwnerRecipient = recipient
	}
	if strings.TrimSpace(c.Fees.PlatformRecipient) != "" {
		recipient, err := ParseAddress(c.Fees.PlatformRecipient)
		if err != nil {
			return market.FeePolicy{}, fmt.Errorf("config: platform recipient: %w", err)
		}
		policy.PlatformRecipient = recipient
	}
	if err := policy.Validate(); err != nil {
		return market.FeePolicy{}, err
	}
	return policy, nil
}

// Vault resolves the configured vault address.
func (c *Config) Vault() ([20]byte, error) {
	return ParseAddress(c.VaultAddress)
}

// ParseAddress decodes a 0x-prefixed 20-byte hex address.
func ParseAddress(value string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("invalid hex address %q", value)
	}
	if len(raw) != len(addr) {
		return addr, fmt.Errorf("address %q must be %d bytes", value, len(addr))
	}
	copy(addr[:], raw)
	if addr == ([20]byte{}) {
		return addr, fmt.Errorf("address must be non-zero")
	}
	return addr, nil
}

func parseBig(value, fallback string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		trimmed = fallback
	}
	if trimmed == "" {
		return nil, fmt.Errorf("value required")
	}
	parsed, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", value)
	}
	return parsed, nil
}
