package registry

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// fileConfig はサービス対応表ファイルのトップレベル構造。
//
//	services:
//	  auth: http://auth:9000
//	  orders: http://orders:9001
type fileConfig struct {
	Services map[string]string `yaml:"services"`
}

// LoadFile はYAMLファイルからサービス対応表を読み込む。
func LoadFile(path, authService string) (*Registry, error) {
	if path == "" {
		return nil, errors.New("サービス対応表ファイルのパスが空です")
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("サービス対応表ファイルを参照できません: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("サービス対応表のパスがディレクトリです: %s", path)
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("サービス対応表ファイルの読み込みに失敗: %w", err)
	}
	return Load(bytes.NewReader(data), authService)
}

// Load はYAML形式のサービス対応表を読み込む。未知のキーはエラーとする。
func Load(r io.Reader, authService string) (*Registry, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var cfg fileConfig
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("サービス対応表が空です")
		}
		return nil, fmt.Errorf("サービス対応表のパースに失敗: %w", err)
	}
	if len(cfg.Services) == 0 {
		return nil, errors.New("services が定義されていません")
	}
	return New(cfg.Services, authService)
}
