package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/jackyeh168/storefront_loyalty/src/internal/domain/loyalty"
)

//go:embed default_program.yaml
var defaultProgram []byte

// ===========================
// 會員方案（等級表 + 獎勵目錄）
// ===========================

// Program 已驗證的會員方案
type Program struct {
	Tiers   loyalty.TierTable
	Catalog loyalty.RewardCatalog
}

type programFile struct {
	Tiers   []tierSpec   `yaml:"tiers"`
	Rewards []rewardSpec `yaml:"rewards"`
}

type tierSpec struct {
	ID         string   `yaml:"id"`
	Name       string   `yaml:"name"`
	MinPoints  int      `yaml:"min_points"`
	Multiplier string   `yaml:"multiplier"`
	Benefits   []string `yaml:"benefits"`
}

type rewardSpec struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	PointCost   int    `yaml:"point_cost"`
	Type        string `yaml:"type"`
	Value       string `yaml:"value"`
	Description string `yaml:"description"`
}

// DefaultProgram 內建方案：Bronze / Silver / Gold（×1 / ×1.5 / ×2）
func DefaultProgram() (Program, error) {
	return ParseProgram(defaultProgram)
}

// LoadProgram 從檔案讀取方案；path 為空時使用內建方案
func LoadProgram(path string) (Program, error) {
	if path == "" {
		return DefaultProgram()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Program{}, fmt.Errorf("failed to read program file %s: %w", path, err)
	}
	program, err := ParseProgram(data)
	if err != nil {
		return Program{}, fmt.Errorf("invalid program file %s: %w", path, err)
	}
	return program, nil
}

// ParseProgram 解析並驗證 YAML 方案
//
// 未知欄位視為錯誤；等級表與獎勵目錄不合法時返回錯誤，不在執行期才發現。
func ParseProgram(data []byte) (Program, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var file programFile
	if err := decoder.Decode(&file); err != nil {
		return Program{}, fmt.Errorf("failed to decode program: %w", err)
	}

	tiers := make([]loyalty.Tier, 0, len(file.Tiers))
	for _, spec := range file.Tiers {
		multiplier, err := decimal.NewFromString(spec.Multiplier)
		if err != nil {
			return Program{}, fmt.Errorf("tier %q: invalid multiplier %q: %w", spec.ID, spec.Multiplier, err)
		}
		tiers = append(tiers, loyalty.Tier{
			ID:         loyalty.TierID(spec.ID),
			Name:       spec.Name,
			MinPoints:  spec.MinPoints,
			Multiplier: multiplier,
			Benefits:   spec.Benefits,
		})
	}

	rewards := make([]loyalty.Reward, 0, len(file.Rewards))
	for _, spec := range file.Rewards {
		rewards = append(rewards, loyalty.Reward{
			ID:          loyalty.RewardID(spec.ID),
			Name:        spec.Name,
			PointCost:   spec.PointCost,
			Type:        loyalty.RewardType(spec.Type),
			Value:       spec.Value,
			Description: spec.Description,
		})
	}

	program := Program{
		Tiers:   loyalty.NewTierTable(tiers...),
		Catalog: loyalty.NewRewardCatalog(rewards...),
	}
	if err := program.Tiers.Validate(); err != nil {
		return Program{}, err
	}
	if err := program.Catalog.Validate(); err != nil {
		return Program{}, err
	}
	return program, nil
}
