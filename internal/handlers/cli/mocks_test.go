package cli

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/gabapcia/walletsync/internal/trade"
	"github.com/gabapcia/walletsync/internal/walletregistry"
	"github.com/gabapcia/walletsync/internal/walletsync"
)

type testingT interface {
	mock.TestingT
	Cleanup(func())
}

// RegistryMock is a testify mock of walletregistry.Service.
type RegistryMock struct {
	mock.Mock
}

var _ walletregistry.Service = (*RegistryMock)(nil)

type RegistryMock_Expecter struct {
	mock *mock.Mock
}

func (_m *RegistryMock) EXPECT() *RegistryMock_Expecter {
	return &RegistryMock_Expecter{mock: &_m.Mock}
}

func NewRegistryMock(t testingT) *RegistryMock {
	m := &RegistryMock{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

func (_m *RegistryMock) StartWatching(ctx context.Context, walletID, address string) error {
	return _m.Called(ctx, walletID, address).Error(0)
}

func (_e *RegistryMock_Expecter) StartWatching(ctx, walletID, address any) *mock.Call {
	return _e.mock.On("StartWatching", ctx, walletID, address)
}

func (_m *RegistryMock) StopWatching(ctx context.Context, walletID string) error {
	return _m.Called(ctx, walletID).Error(0)
}

func (_e *RegistryMock_Expecter) StopWatching(ctx, walletID any) *mock.Call {
	return _e.mock.On("StopWatching", ctx, walletID)
}

func (_m *RegistryMock) Lookup(ctx context.Context, walletID string) (walletregistry.Wallet, error) {
	ret := _m.Called(ctx, walletID)
	return ret.Get(0).(walletregistry.Wallet), ret.Error(1)
}

func (_e *RegistryMock_Expecter) Lookup(ctx, walletID any) *mock.Call {
	return _e.mock.On("Lookup", ctx, walletID)
}

func (_m *RegistryMock) Watched(ctx context.Context) ([]walletregistry.Wallet, error) {
	ret := _m.Called(ctx)
	wallets, _ := ret.Get(0).([]walletregistry.Wallet)
	return wallets, ret.Error(1)
}

func (_e *RegistryMock_Expecter) Watched(ctx any) *mock.Call {
	return _e.mock.On("Watched", ctx)
}

// SyncerMock is a testify mock of WalletSyncer.
type SyncerMock struct {
	mock.Mock
}

var _ WalletSyncer = (*SyncerMock)(nil)

type SyncerMock_Expecter struct {
	mock *mock.Mock
}

func (_m *SyncerMock) EXPECT() *SyncerMock_Expecter {
	return &SyncerMock_Expecter{mock: &_m.Mock}
}

func NewSyncerMock(t testingT) *SyncerMock {
	m := &SyncerMock{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

func (_m *SyncerMock) ScanWallet(ctx context.Context, walletID, address string) (walletsync.ScanResult, error) {
	ret := _m.Called(ctx, walletID, address)
	return ret.Get(0).(walletsync.ScanResult), ret.Error(1)
}

func (_e *SyncerMock_Expecter) ScanWallet(ctx, walletID, address any) *mock.Call {
	return _e.mock.On("ScanWallet", ctx, walletID, address)
}

func (_m *SyncerMock) RefreshWallet(ctx context.Context, walletID, address string) (walletsync.RefreshResult, error) {
	ret := _m.Called(ctx, walletID, address)
	return ret.Get(0).(walletsync.RefreshResult), ret.Error(1)
}

func (_e *SyncerMock_Expecter) RefreshWallet(ctx, walletID, address any) *mock.Call {
	return _e.mock.On("RefreshWallet", ctx, walletID, address)
}

func (_m *SyncerMock) SyncState(ctx context.Context, walletID string) (trade.SyncState, error) {
	ret := _m.Called(ctx, walletID)
	return ret.Get(0).(trade.SyncState), ret.Error(1)
}

func (_e *SyncerMock_Expecter) SyncState(ctx, walletID any) *mock.Call {
	return _e.mock.On("SyncState", ctx, walletID)
}

func (_m *SyncerMock) RevalueWallet(ctx context.Context, walletID string) (walletsync.RevalueResult, error) {
	ret := _m.Called(ctx, walletID)
	return ret.Get(0).(walletsync.RevalueResult), ret.Error(1)
}

func (_e *SyncerMock_Expecter) RevalueWallet(ctx, walletID any) *mock.Call {
	return _e.mock.On("RevalueWallet", ctx, walletID)
}

// SchedulerMock is a testify mock of syncscheduler.Service.
type SchedulerMock struct {
	mock.Mock
}

type SchedulerMock_Expecter struct {
	mock *mock.Mock
}

func (_m *SchedulerMock) EXPECT() *SchedulerMock_Expecter {
	return &SchedulerMock_Expecter{mock: &_m.Mock}
}

func NewSchedulerMock(t testingT) *SchedulerMock {
	m := &SchedulerMock{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

func (_m *SchedulerMock) Start(ctx context.Context) error {
	return _m.Called(ctx).Error(0)
}

func (_e *SchedulerMock_Expecter) Start(ctx any) *mock.Call {
	return _e.mock.On("Start", ctx)
}

func (_m *SchedulerMock) Close() {
	_m.Called()
}

func (_e *SchedulerMock_Expecter) Close() *mock.Call {
	return _e.mock.On("Close")
}
