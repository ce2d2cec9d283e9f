package params

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMainnetActivationEdges(t *testing.T) {
	p := Mainnet()

	require.False(t, p.Upgrades.IsActive(124_999, Lwma))
	require.True(t, p.Upgrades.IsActive(125_000, Lwma))

	require.False(t, p.Upgrades.IsActive(125_099, Equi144_5))
	require.True(t, p.Upgrades.IsActive(125_100, Equi144_5))

	require.False(t, p.Upgrades.IsActive(2_019_999, Pon))
	require.True(t, p.Upgrades.IsActive(2_020_000, Pon))
}

func TestBranchIDSelection(t *testing.T) {
	p := Mainnet()
	require.Equal(t, SproutBranchID, p.Upgrades.CurrentBranchID(0))
	require.Equal(t, BranchIDStandard, p.Upgrades.CurrentBranchID(125_000))
}

func TestNextActivationHeightTracking(t *testing.T) {
	p := Mainnet()
	h, ok := p.Upgrades.NextActivationHeight(0)
	require.True(t, ok)
	require.Equal(t, int32(125_000), h)

	h, ok = p.Upgrades.NextActivationHeight(125_000)
	require.True(t, ok)
	require.Equal(t, int32(125_100), h)
}

func TestEpochAwareSubsidyProperty(t *testing.T) {
	p := Mainnet()
	activation := p.Upgrades[Pon].ActivationHeight

	require.Equal(t, int64(14)*Coin, BlockSubsidy(activation, p))
	require.Equal(t, int64(12_600_000_00), BlockSubsidy(activation+p.PonSubsidyReductionInterval, p))
}

func TestPonActivationSwitchesSubsidy(t *testing.T) {
	p := Mainnet()
	activation := p.Upgrades[Pon].ActivationHeight

	before := BlockSubsidy(activation-1, p)
	require.Equal(t, int64(150)*Coin/4, before)

	at := BlockSubsidy(activation, p)
	require.Equal(t, p.PonInitialSubsidy*Coin, at)

	after := BlockSubsidy(activation+1, p)
	require.Equal(t, at, after)
}

func TestCanceledHalvingFreezesSubsidy(t *testing.T) {
	p := Mainnet()
	height := int32(1_968_550)

	before := BlockSubsidy(height-1, p)
	at := BlockSubsidy(height, p)
	after := BlockSubsidy(height+1, p)

	require.Equal(t, before, at)
	require.Equal(t, after, at)
	require.Equal(t, int64(150)*Coin/4, at)
	require.NotEqual(t, int64(150)*Coin/8, at)
}

func TestPonSubsidyReductionsCapAtMax(t *testing.T) {
	p := Mainnet()
	activation := p.Upgrades[Pon].ActivationHeight

	year20 := BlockSubsidy(activation+20*p.PonSubsidyReductionInterval, p)
	year21 := BlockSubsidy(activation+21*p.PonSubsidyReductionInterval, p)
	year30 := BlockSubsidy(activation+30*p.PonSubsidyReductionInterval, p)

	require.Equal(t, year20, year21)
	require.Equal(t, year20, year30)
}

func TestPonRewardDistributionSumsToTotal(t *testing.T) {
	p := Mainnet()
	activation := p.Upgrades[Pon].ActivationHeight

	total := BlockSubsidy(activation, p)
	require.Equal(t, int64(14)*Coin, total)

	cumulus := FluxnodeSubsidy(activation, total, TierCumulus, p)
	nimbus := FluxnodeSubsidy(activation, total, TierNimbus, p)
	stratus := FluxnodeSubsidy(activation, total, TierStratus, p)
	require.Equal(t, Coin, cumulus)
	require.Equal(t, int64(35)*Coin/10, nimbus)
	require.Equal(t, int64(9)*Coin, stratus)

	devFund := MinDevFundAmount(activation, p)
	require.Equal(t, total-cumulus-nimbus-stratus, devFund)
	require.Equal(t, total, cumulus+nimbus+stratus+devFund)
}

func TestMinDevFundZeroBeforePon(t *testing.T) {
	p := Mainnet()
	activation := p.Upgrades[Pon].ActivationHeight
	require.Equal(t, int64(0), MinDevFundAmount(activation-1, p))
	require.NotEqual(t, int64(0), MinDevFundAmount(activation, p))
}

func TestFluxnodeTierTransitionWindow(t *testing.T) {
	p := Mainnet()
	flux := p.Fluxnode

	before := flux.CumulusTransitionStart - 1
	require.True(t, FluxnodeCollateralMatchesTier(before, flux.V1Cumulus, TierCumulus, flux))
	require.False(t, FluxnodeCollateralMatchesTier(before, flux.V2Cumulus, TierCumulus, flux))

	during := flux.CumulusTransitionStart
	require.True(t, FluxnodeCollateralMatchesTier(during, flux.V1Cumulus, TierCumulus, flux))
	require.True(t, FluxnodeCollateralMatchesTier(during, flux.V2Cumulus, TierCumulus, flux))

	after := flux.CumulusTransitionEnd
	require.False(t, FluxnodeCollateralMatchesTier(after, flux.V1Cumulus, TierCumulus, flux))
	require.True(t, FluxnodeCollateralMatchesTier(after, flux.V2Cumulus, TierCumulus, flux))
}

func TestChainWorkMonotonicWithDifficulty(t *testing.T) {
	easy := ChainWork(0x1d00ffff)
	hard := ChainWork(0x1c00ffff)
	require.True(t, hard.Cmp(easy) > 0, "a lower target (harder difficulty) must accumulate more work")
}
