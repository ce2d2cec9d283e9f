package params

import "math/big"

// Coin is the smallest-unit scale factor (1 coin = 1e8 base units),
// matching the Zcash-family convention this chain inherits.
const Coin int64 = 100_000_000

// FluxnodeParams holds the collateral-tier schedule: fixed amounts per
// tier, plus the v1→v2 collateral transition windows during which either
// amount is accepted. Grounded on rewards.rs's
// fluxnode_collateral_matches_tier.
type FluxnodeParams struct {
	V1Cumulus, V1Nimbus, V1Stratus int64
	V2Cumulus, V2Nimbus, V2Stratus int64

	CumulusTransitionStart, CumulusTransitionEnd int32
	NimbusTransitionStart, NimbusTransitionEnd   int32
	StratusTransitionStart, StratusTransitionEnd int32
}

// ConsensusParams bundles everything the validation and chainstate layers
// need to know about "when", as opposed to "how": the upgrade schedule,
// subsidy schedule, and fluxnode collateral tiers for one network.
type ConsensusParams struct {
	Upgrades Schedule
	Fluxnode FluxnodeParams

	// Pre-PoN (PoW era) subsidy schedule.
	SubsidySlowStartInterval int32
	SubsidyHalvingInterval   int32

	// PoN-era subsidy schedule: a fixed initial block reward that decays by
	// 9/10 every PonSubsidyReductionInterval blocks, capped at
	// PonMaxReductions reductions total.
	PonInitialSubsidy          int64 // whole coins, multiplied by Coin
	PonSubsidyReductionInterval int32
	PonMaxReductions           int32

	// MaxReorgDepth bounds how many blocks a reorg may unwind in the
	// common case; MaxReorgDepthPonWindow is the wider bound that applies
	// only while still inside the PoN activation grace window (see
	// SPEC_FULL.md §4.7 / testable property 8).
	MaxReorgDepth          int32
	MaxReorgDepthPonWindow int32
	PonWindowBlocks        int32
}

// subsidySlowStartShift is the height offset subtracted before computing
// halving epochs, per Zcash-family convention: half the slow-start
// interval.
func (p ConsensusParams) subsidySlowStartShift() int32 {
	return p.SubsidySlowStartInterval / 2
}

// Mainnet returns the production network's consensus parameters.
//
// Upgrade activation heights for Lwma (125000), Equi144_5 (125100), and
// Pon (2020000) are pinned exactly to the vectors exercised by the
// mainnet_activation_edges / mainnet_pon_activation_switches_subsidy
// fixtures; the remaining heights are evenly spaced placeholders in the
// absence of the original params.rs (see DESIGN.md Open Questions).
func Mainnet() ConsensusParams {
	return ConsensusParams{
		Upgrades: Schedule{
			BaseSprout: {ActivationHeight: 0},
			TestDummy:  {ActivationHeight: NoActivationHeight},
			Lwma:       {ActivationHeight: 125_000},
			Equi144_5:  {ActivationHeight: 125_100},
			Acadia:     {ActivationHeight: 372_500},
			Kamiooka:   {ActivationHeight: 373_649},
			Kamata:     {ActivationHeight: 776_150},
			Flux:       {ActivationHeight: 828_152},
			Halving:    {ActivationHeight: 1_076_532},
			P2ShNodes:  {ActivationHeight: 1_750_000},
			Pon:        {ActivationHeight: 2_020_000},
		},
		Fluxnode: FluxnodeParams{
			V1Cumulus: 10_000 * Coin, V1Nimbus: 25_000 * Coin, V1Stratus: 100_000 * Coin,
			V2Cumulus: 1_000 * Coin, V2Nimbus: 12_500 * Coin, V2Stratus: 40_000 * Coin,
			CumulusTransitionStart: 1_076_532, CumulusTransitionEnd: 1_087_732,
			NimbusTransitionStart: 1_076_532, NimbusTransitionEnd: 1_087_732,
			StratusTransitionStart: 1_076_532, StratusTransitionEnd: 1_087_732,
		},
		SubsidySlowStartInterval: 20_000,
		SubsidyHalvingInterval:   655_350,

		PonInitialSubsidy:           14,
		PonSubsidyReductionInterval: 210_000,
		PonMaxReductions:            20,

		MaxReorgDepth:          40,
		MaxReorgDepthPonWindow: 5_000,
		PonWindowBlocks:        10_000,
	}
}

// ChainWork converts a compact nBits difficulty target into its work
// contribution: floor(2^256 / (target + 1)). Grounded on the teacher's
// pkg/block header-work math (internal/consensus/pow.go), generalized to
// operate on the compact-bits encoding this chain shares with the
// Bitcoin/Zcash family rather than the teacher's raw-difficulty field.
func ChainWork(bits uint32) *big.Int {
	target := CompactToBig(bits)
	if target.Sign() <= 0 {
		return big.NewInt(0)
	}
	denom := new(big.Int).Add(target, big.NewInt(1))
	work := new(big.Int).Lsh(big.NewInt(1), 256)
	return work.Div(work, denom)
}

// CompactToBig expands the compact ("nBits") difficulty encoding into a
// full target value: a base-256 exponent in the top byte, with sign bit
// and 3-byte mantissa in the rest — the same layout Bitcoin-family chains
// use for on-wire difficulty targets.
func CompactToBig(bits uint32) *big.Int {
	mantissa := bits & 0x007fffff
	exponent := bits >> 24
	negative := bits&0x00800000 != 0

	result := new(big.Int)
	if exponent <= 3 {
		mantissa >>= 8 * (3 - exponent)
		result.SetInt64(int64(mantissa))
	} else {
		result.SetInt64(int64(mantissa))
		result.Lsh(result, uint(8*(exponent-3)))
	}
	if negative {
		result.Neg(result)
	}
	return result
}
