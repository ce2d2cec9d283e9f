package params

// BlockSubsidy computes the total block reward at height, before any
// per-recipient split. Pre-PoN it follows the slow-start ramp then a
// halving schedule capped at two halvings (subsidy is frozen at 1/4 of
// its base value forever after); once PoN activates it instead follows a
// fixed initial reward that decays by 9/10 every PonSubsidyReductionInterval
// blocks, capped at PonMaxReductions reductions.
//
// Grounded on original_source/fluxd_rust/crates/consensus/src/rewards.rs
// block_subsidy, preserving its exact integer truncation order (each
// reduction step is `subsidy = subsidy * 9 / 10`, not a single
// exponentiated multiply) since later code depends on the drifted-from-
// floating-point result matching upstream bit for bit.
func BlockSubsidy(height int32, p ConsensusParams) int64 {
	if p.Upgrades.IsActive(height, Pon) {
		subsidy := p.PonInitialSubsidy * Coin
		activationHeight := p.Upgrades[Pon].ActivationHeight
		blocksSincePon := height - activationHeight
		if blocksSincePon < 0 {
			blocksSincePon = 0
		}
		reductions := blocksSincePon / p.PonSubsidyReductionInterval
		if reductions > p.PonMaxReductions {
			reductions = p.PonMaxReductions
		}
		for i := int32(0); i < reductions; i++ {
			subsidy = subsidy * 9 / 10
		}
		return subsidy
	}

	if height == 1 {
		return 13_020_000 * Coin
	}

	subsidy := int64(150) * Coin
	switch {
	case height < p.SubsidySlowStartInterval/2:
		subsidy /= int64(p.SubsidySlowStartInterval)
		subsidy *= int64(height)
		return subsidy
	case height < p.SubsidySlowStartInterval:
		subsidy /= int64(p.SubsidySlowStartInterval)
		subsidy *= int64(height + 1)
		return subsidy
	}

	shift := p.subsidySlowStartShift()
	halvings := (height - shift) / p.SubsidyHalvingInterval
	switch {
	case halvings >= 64:
		return 0
	case halvings >= 2:
		return subsidy >> 2
	default:
		return subsidy >> uint(halvings)
	}
}

// FluxnodeTier identifies a collateral tier (1 = Cumulus, 2 = Nimbus,
// 3 = Stratus); 0 means no recognized tier.
type FluxnodeTier int32

const (
	TierCumulus FluxnodeTier = 1
	TierNimbus  FluxnodeTier = 2
	TierStratus FluxnodeTier = 3
)

const (
	ponCumulusBase = Coin         // 1 COIN
	ponNimbusBase  = 35 * Coin / 10 // 3.5 COIN
	ponStratusBase = 9 * Coin     // 9 COIN
	ponInitialTotal = 14 * Coin
)

// FluxnodeSubsidy computes tier's share of a block worth blockValue.
// Pre-PoN it is a fixed percentage of blockValue (doubled once the Flux
// upgrade activates); once PoN activates it is instead tier's fixed
// fraction of the PoN-era initial total, scaled by the actual block value
// (so the per-tier share decays in lockstep with BlockSubsidy).
func FluxnodeSubsidy(height int32, blockValue int64, tier FluxnodeTier, p ConsensusParams) int64 {
	if p.Upgrades.IsActive(height, Pon) {
		var base int64
		switch tier {
		case TierCumulus:
			base = ponCumulusBase
		case TierNimbus:
			base = ponNimbusBase
		case TierStratus:
			base = ponStratusBase
		default:
			return 0
		}
		return blockValue * base / ponInitialTotal
	}

	multiple := 1.0
	if p.Upgrades.IsActive(height, Flux) {
		multiple = 2.0
	}
	var percentage float64
	switch tier {
	case TierCumulus:
		percentage = 0.0375
	case TierNimbus:
		percentage = 0.0625
	case TierStratus:
		percentage = 0.15
	default:
		return 0
	}
	return int64(float64(blockValue) * percentage * multiple)
}

// MinDevFundAmount is the portion of the PoN-era block reward left over
// after all three fluxnode tiers are paid: zero before PoN activates.
func MinDevFundAmount(height int32, p ConsensusParams) int64 {
	if !p.Upgrades.IsActive(height, Pon) {
		return 0
	}
	blockValue := BlockSubsidy(height, p)
	cumulus := FluxnodeSubsidy(height, blockValue, TierCumulus, p)
	nimbus := FluxnodeSubsidy(height, blockValue, TierNimbus, p)
	stratus := FluxnodeSubsidy(height, blockValue, TierStratus, p)
	return blockValue - cumulus - nimbus - stratus
}

// FluxnodeTierFromCollateral returns the tier matching amount at height,
// or (0, false) if amount does not match any tier's active collateral
// requirement.
func FluxnodeTierFromCollateral(height int32, amount int64, p FluxnodeParams) (FluxnodeTier, bool) {
	for _, tier := range []FluxnodeTier{TierCumulus, TierNimbus, TierStratus} {
		if FluxnodeCollateralMatchesTier(height, amount, tier, p) {
			return tier, true
		}
	}
	return 0, false
}

// FluxnodeCollateralMatchesTier reports whether amount is a valid
// collateral value for tier at height, honoring the v1→v2 transition
// window during which either amount is accepted.
func FluxnodeCollateralMatchesTier(height int32, amount int64, tier FluxnodeTier, p FluxnodeParams) bool {
	switch tier {
	case TierCumulus:
		return matchesTransition(height, amount, p.V1Cumulus, p.V2Cumulus, p.CumulusTransitionStart, p.CumulusTransitionEnd)
	case TierNimbus:
		return matchesTransition(height, amount, p.V1Nimbus, p.V2Nimbus, p.NimbusTransitionStart, p.NimbusTransitionEnd)
	case TierStratus:
		return matchesTransition(height, amount, p.V1Stratus, p.V2Stratus, p.StratusTransitionStart, p.StratusTransitionEnd)
	default:
		return false
	}
}

func matchesTransition(height int32, amount, v1, v2 int64, start, end int32) bool {
	switch {
	case height < start:
		return amount == v1
	case height < end:
		return amount == v1 || amount == v2
	default:
		return amount == v2
	}
}

// FluxnodeCollateralSlot identifies one of the six fixed collateral
// amounts (tier x v1/v2 epoch) that the address balance index tallies
// per address. SlotNone means amount does not match any of the six.
// Grounded on address_balance.rs's AddressBalanceEntry, whose six
// v1_*/v2_* counters this slot enumeration drives.
type FluxnodeCollateralSlot int

const (
	SlotNone FluxnodeCollateralSlot = iota
	SlotV1Cumulus
	SlotV1Nimbus
	SlotV1Stratus
	SlotV2Cumulus
	SlotV2Nimbus
	SlotV2Stratus
)

// ClassifyFluxnodeCollateral reports which (tier, version) slot amount
// exactly matches, independent of height. The v1/v2 transition windows
// that FluxnodeCollateralMatchesTier honors gate which amount is valid
// to *register* a fluxnode with at a given height; tallying an
// already-on-chain output by its exact value needs no such gate.
func ClassifyFluxnodeCollateral(amount int64, p FluxnodeParams) FluxnodeCollateralSlot {
	switch amount {
	case p.V1Cumulus:
		return SlotV1Cumulus
	case p.V1Nimbus:
		return SlotV1Nimbus
	case p.V1Stratus:
		return SlotV1Stratus
	case p.V2Cumulus:
		return SlotV2Cumulus
	case p.V2Nimbus:
		return SlotV2Nimbus
	case p.V2Stratus:
		return SlotV2Stratus
	default:
		return SlotNone
	}
}
