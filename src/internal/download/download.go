package download

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/admi-n/trustguard/src/internal"
)

// 下载失败原因
var (
	ErrInvalidAddress = errors.New("invalid contract address")
	ErrNoCode         = errors.New("no contract deployed at address")
	ErrNotVerified    = errors.New("contract source is not verified on etherscan")
)

// Contract 下载到的合约源码
type Contract struct {
	Address  string
	Name     string
	Compiler string
	Source   string
}

// CodeReader ethclient.Client 中用到的部分
type CodeReader interface {
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

// Fetcher 按地址获取已验证的合约源码；源码未验证时用链上字节码区分“无合约”和“未开源”
type Fetcher struct {
	etherscan *EtherscanClient
	chain     CodeReader
	closeFn   func()
	logger    *zap.Logger
}

// FetcherConfig Fetcher 配置
type FetcherConfig struct {
	Etherscan EtherscanConfig
	RPCURL    string // 可选，为空时不做链上检查
	Logger    *zap.Logger
}

// NewFetcher 创建 Fetcher，配置了 RPCURL 时连接以太坊节点
func NewFetcher(ctx context.Context, cfg FetcherConfig) (*Fetcher, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	cfg.Etherscan.Logger = cfg.Logger

	es, err := NewEtherscanClient(cfg.Etherscan)
	if err != nil {
		return nil, err
	}

	f := &Fetcher{etherscan: es, logger: cfg.Logger}

	if strings.TrimSpace(cfg.RPCURL) != "" {
		client, err := ethclient.DialContext(ctx, cfg.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to ethereum node: %w", err)
		}
		f.chain = client
		f.closeFn = client.Close
		cfg.Logger.Info("connected to ethereum node")
	}

	return f, nil
}

// NewFetcherWithClients 使用已有客户端创建 Fetcher，chain 可为 nil
func NewFetcherWithClients(es *EtherscanClient, chain CodeReader, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{etherscan: es, chain: chain, logger: logger}
}

// FetchSource 获取地址对应的合约源码
func (f *Fetcher) FetchSource(ctx context.Context, address string) (*Contract, error) {
	address = strings.TrimSpace(address)
	if !common.IsHexAddress(address) {
		return nil, internal.NewAuditError(internal.StageInput, internal.ErrInvalidInput,
			fmt.Errorf("%w: %q", ErrInvalidAddress, address))
	}
	addr := common.HexToAddress(address)

	res, verified, err := f.etherscan.GetContractSource(ctx, addr.Hex())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch source for %s: %w", addr.Hex(), err)
	}
	if verified {
		f.logger.Info("fetched verified source",
			zap.String("address", addr.Hex()),
			zap.String("contract", res.ContractName))
		return &Contract{
			Address:  addr.Hex(),
			Name:     res.ContractName,
			Compiler: res.CompilerVersion,
			Source:   res.SourceCode,
		}, nil
	}

	if f.chain != nil {
		code, err := f.chain.CodeAt(ctx, addr, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to read code for %s: %w", addr.Hex(), err)
		}
		if len(code) == 0 {
			return nil, internal.NewAuditError(internal.StageInput, internal.ErrInvalidInput,
				fmt.Errorf("%w: %s", ErrNoCode, addr.Hex()))
		}
		f.logger.Info("contract has bytecode but no verified source",
			zap.String("address", addr.Hex()),
			zap.Int("code_bytes", len(code)))
	}

	return nil, internal.NewAuditError(internal.StageInput, internal.ErrInvalidInput,
		fmt.Errorf("%w: %s", ErrNotVerified, addr.Hex()))
}

// Close 关闭以太坊节点连接
func (f *Fetcher) Close() {
	if f.closeFn != nil {
		f.closeFn()
	}
}
