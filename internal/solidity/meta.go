package solidity

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"symevm/internal/util"
)

// SolcBinaryVersionInfo list.json中的一项
// https://github.com/ethereum/solc-bin/tree/gh-pages/bin
type SolcBinaryVersionInfo struct {
	Path        string   `json:"path"`
	Version     string   `json:"version"`
	Build       string   `json:"build"`
	LongVersion string   `json:"longVersion"`
	Keccak256   string   `json:"keccak256"`
	Sha256      string   `json:"sha256"`
	URLs        []string `json:"urls"`
}

func (info *SolcBinaryVersionInfo) nightly() bool {
	return strings.Contains(info.Path, "nightly")
}

// verify 文件的keccak256和列表中的一致，列表中没有时不检查
func (info *SolcBinaryVersionInfo) verify(filePath string) error {
	if info.Keccak256 == "" {
		return nil
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return errors.Wrap(err, "ReadFile")
	}
	hash := hexutil.Encode(crypto.Keccak256(data))
	if !strings.EqualFold(hash, info.Keccak256) {
		return errors.Errorf("%s: keccak256 %s, expected %s", info.Path, hash, info.Keccak256)
	}
	return nil
}

type SolcBinaryMeta struct {
	Builds []SolcBinaryVersionInfo `json:"builds"`
}

// fetch 本地缓存中没有时从endpoint下载
func fetch(name string) (string, error) {
	localPath := filepath.Join(SolcBinaryDir, name)
	exists, err := util.FileExists(localPath)
	if err != nil {
		return "", errors.Wrap(err, "FileExists")
	}
	if exists {
		return localPath, nil
	}
	log.Infof("download %s", name)
	if err := util.DownloadFile(localPath, SolcBinaryEndpoint+name); err != nil {
		return "", errors.Wrap(err, "DownloadFile")
	}
	return localPath, nil
}

func NewSolcBinaryMeta() (*SolcBinaryMeta, error) {
	metaPath, err := fetch(SolcBinaryMetaFile)
	if err != nil {
		return nil, err
	}
	return readSolcMeta(metaPath)
}

// findBuild 版本号完全相同的正式版
func (sbm *SolcBinaryMeta) findBuild(version string) (*SolcBinaryVersionInfo, bool) {
	version = strings.TrimPrefix(version, "^")
	for i := range sbm.Builds {
		if build := &sbm.Builds[i]; build.Version == version && !build.nightly() {
			return build, true
		}
	}
	return nil, false
}

// GetSolcBinary 返回本地路径，校验失败的文件会被删掉，下次重新下载
func (sbm *SolcBinaryMeta) GetSolcBinary(version string) (string, error) {
	build, ok := sbm.findBuild(version)
	if !ok {
		return "", errors.Errorf("no version matches %s", version)
	}
	binaryPath, err := fetch(build.Path)
	if err != nil {
		return "", err
	}
	if err := build.verify(binaryPath); err != nil {
		if rmErr := os.Remove(binaryPath); rmErr != nil {
			log.Warnf("remove %s: %v", binaryPath, rmErr)
		}
		return "", err
	}
	return binaryPath, nil
}

func readSolcMeta(filePath string) (*SolcBinaryMeta, error) {
	fileData, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrap(err, "ReadFile")
	}
	var solcMeta SolcBinaryMeta
	if err := json.Unmarshal(fileData, &solcMeta); err != nil {
		return nil, errors.Wrap(err, "Unmarshal")
	}
	return &solcMeta, nil
}
