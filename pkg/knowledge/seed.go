package knowledge

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Seed is the YAML import format:
//
//	qa:
//	  - category: VPN
//	    question: VPNに接続できない
//	    point: クライアントを再起動してね
//	    url: https://wiki.example.com/vpn
//	docs:
//	  - major: 端末
//	    minor: PC
//	    title: PC貸出規程
type Seed struct {
	QA   []QARow  `yaml:"qa"`
	Docs []DocRow `yaml:"docs"`
}

type QARow struct {
	Category string `yaml:"category"`
	Question string `yaml:"question"`
	Point    string `yaml:"point"`
	Note     string `yaml:"note"`
	URL      string `yaml:"url"`
}

type DocRow struct {
	Major string `yaml:"major"`
	Minor string `yaml:"minor"`
	Title string `yaml:"title"`
	Point string `yaml:"point"`
	URL   string `yaml:"url"`
}

func LoadSeedFile(path string) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, err
	}
	return ParseSeed(data)
}

func ParseSeed(data []byte) (Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return Seed{}, fmt.Errorf("parse knowledge seed: %w", err)
	}
	return seed, seed.Validate()
}

// Validate rejects rows that would never be loaded back.
func (s Seed) Validate() error {
	var errs []error
	for i, q := range s.QA {
		if strings.TrimSpace(q.Question) == "" {
			errs = append(errs, fmt.Errorf("qa[%d]: question is required", i))
		}
	}
	for i, d := range s.Docs {
		if strings.TrimSpace(d.Title) == "" {
			errs = append(errs, fmt.Errorf("docs[%d]: title is required", i))
		}
	}
	return errors.Join(errs...)
}
