package walletregistry

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// WalletStorageMock is a testify mock of WalletStorage with typed expectations.
type WalletStorageMock struct {
	mock.Mock
}

type WalletStorageMock_Expecter struct {
	mock *mock.Mock
}

func (_m *WalletStorageMock) EXPECT() *WalletStorageMock_Expecter {
	return &WalletStorageMock_Expecter{mock: &_m.Mock}
}

// NewWalletStorageMock registers a cleanup asserting every expectation was met.
func NewWalletStorageMock(t interface {
	mock.TestingT
	Cleanup(func())
}) *WalletStorageMock {
	m := &WalletStorageMock{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

func (_m *WalletStorageMock) RegisterWallet(ctx context.Context, w Wallet) error {
	ret := _m.Called(ctx, w)
	return ret.Error(0)
}

type WalletStorageMock_RegisterWallet_Call struct {
	*mock.Call
}

func (_e *WalletStorageMock_Expecter) RegisterWallet(ctx any, w any) *WalletStorageMock_RegisterWallet_Call {
	return &WalletStorageMock_RegisterWallet_Call{Call: _e.mock.On("RegisterWallet", ctx, w)}
}

func (_c *WalletStorageMock_RegisterWallet_Call) Return(err error) *WalletStorageMock_RegisterWallet_Call {
	_c.Call.Return(err)
	return _c
}

func (_m *WalletStorageMock) UnregisterWallet(ctx context.Context, walletID string) error {
	ret := _m.Called(ctx, walletID)
	return ret.Error(0)
}

type WalletStorageMock_UnregisterWallet_Call struct {
	*mock.Call
}

func (_e *WalletStorageMock_Expecter) UnregisterWallet(ctx any, walletID any) *WalletStorageMock_UnregisterWallet_Call {
	return &WalletStorageMock_UnregisterWallet_Call{Call: _e.mock.On("UnregisterWallet", ctx, walletID)}
}

func (_c *WalletStorageMock_UnregisterWallet_Call) Return(err error) *WalletStorageMock_UnregisterWallet_Call {
	_c.Call.Return(err)
	return _c
}

func (_m *WalletStorageMock) GetWallet(ctx context.Context, walletID string) (Wallet, error) {
	ret := _m.Called(ctx, walletID)
	return ret.Get(0).(Wallet), ret.Error(1)
}

type WalletStorageMock_GetWallet_Call struct {
	*mock.Call
}

func (_e *WalletStorageMock_Expecter) GetWallet(ctx any, walletID any) *WalletStorageMock_GetWallet_Call {
	return &WalletStorageMock_GetWallet_Call{Call: _e.mock.On("GetWallet", ctx, walletID)}
}

func (_c *WalletStorageMock_GetWallet_Call) Return(w Wallet, err error) *WalletStorageMock_GetWallet_Call {
	_c.Call.Return(w, err)
	return _c
}

func (_m *WalletStorageMock) ListWallets(ctx context.Context) ([]Wallet, error) {
	ret := _m.Called(ctx)

	var wallets []Wallet
	if v := ret.Get(0); v != nil {
		wallets = v.([]Wallet)
	}
	return wallets, ret.Error(1)
}

type WalletStorageMock_ListWallets_Call struct {
	*mock.Call
}

func (_e *WalletStorageMock_Expecter) ListWallets(ctx any) *WalletStorageMock_ListWallets_Call {
	return &WalletStorageMock_ListWallets_Call{Call: _e.mock.On("ListWallets", ctx)}
}

func (_c *WalletStorageMock_ListWallets_Call) Return(wallets []Wallet, err error) *WalletStorageMock_ListWallets_Call {
	_c.Call.Return(wallets, err)
	return _c
}
