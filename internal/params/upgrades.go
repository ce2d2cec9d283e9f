// Package params holds consensus-parameter data: the network upgrade
// schedule, branch IDs, subsidy schedule, and fluxnode collateral tiers.
// None of this package verifies anything — it is pure lookup/arithmetic
// consulted by internal/validation and internal/chainstate to decide *when*
// to apply a rule, never *how* to verify it.
//
// Grounded on original_source/fluxd_rust/crates/consensus/src/upgrades.rs
// and rewards.rs, adapted from the teacher's internal/consensus parameter
// plumbing (internal/consensus/engine.go's per-height rule dispatch).
package params

import "github.com/fluxd-org/fluxd/pkg/chainhash"

// Upgrade identifies one entry in the fixed 11-upgrade schedule.
type Upgrade int

const (
	BaseSprout Upgrade = iota
	TestDummy
	Lwma
	Equi144_5
	Acadia
	Kamiooka
	Kamata
	Flux
	Halving
	P2ShNodes
	Pon

	NumUpgrades
)

// NoActivationHeight marks an upgrade that never activates on a given
// network.
const NoActivationHeight int32 = -1

// Branch IDs committed to by signature hashes. Every upgrade after the
// two bootstrap entries shares one branch ID: only the *set* of active
// rules changes per upgrade, not the signature-hash domain separator.
const (
	BranchIDBase      uint32 = 0
	BranchIDTestDummy uint32 = 0x74736554
	BranchIDStandard  uint32 = 0x76b809bb
)

// UpgradeInfo is the static (branch ID, name) pair for an upgrade.
type UpgradeInfo struct {
	BranchID uint32
	Name     string
	Info     string
}

var upgradeInfo = [NumUpgrades]UpgradeInfo{
	BaseSprout: {BranchIDBase, "Base", "network launch"},
	TestDummy:  {BranchIDTestDummy, "Test dummy", "test dummy upgrade"},
	Lwma:       {BranchIDStandard, "LWMA", "LWMA difficulty retarget"},
	Equi144_5:  {BranchIDStandard, "Equihash 144/5", "Equihash parameter change"},
	Acadia:     {BranchIDStandard, "Acadia", "Acadia network upgrade"},
	Kamiooka:   {BranchIDStandard, "Kamiooka", "PoW change and fluxnode update"},
	Kamata:     {BranchIDStandard, "Kamata", "deterministic fluxnode registry"},
	Flux:       {BranchIDStandard, "Flux", "multi-chain rebrand"},
	Halving:    {BranchIDStandard, "Halving", "subsidy halving cadence change"},
	P2ShNodes:  {BranchIDStandard, "P2SHNodes", "multisig fluxnode collateral"},
	Pon:        {BranchIDStandard, "PoN", "Proof-of-Node activation"},
}

// SproutBranchID is the branch ID in effect before any upgrade activates.
var SproutBranchID = upgradeInfo[BaseSprout].BranchID

// NetworkUpgrade is one schedule entry: the height at which it activates
// and, for upgrades with an anchored activation block, the expected hash
// of the block at that height.
type NetworkUpgrade struct {
	ProtocolVersion     int32
	ActivationHeight    int32
	HashActivationBlock *chainhash.Hash
}

// Schedule is the full 11-entry upgrade schedule for one network.
type Schedule [NumUpgrades]NetworkUpgrade

// UpgradeState is the activation status of an upgrade at a given height.
type UpgradeState int

const (
	Disabled UpgradeState = iota
	Pending
	Active
)

// StateAt reports u's activation state at height on the given schedule.
func (s Schedule) StateAt(height int32, u Upgrade) UpgradeState {
	h := s[u].ActivationHeight
	switch {
	case h == NoActivationHeight:
		return Disabled
	case height >= h:
		return Active
	default:
		return Pending
	}
}

// IsActive reports whether u has activated by height.
func (s Schedule) IsActive(height int32, u Upgrade) bool {
	return s.StateAt(height, u) == Active
}

// CurrentEpoch returns the most recently activated upgrade at height.
func (s Schedule) CurrentEpoch(height int32) Upgrade {
	for u := NumUpgrades - 1; u >= 0; u-- {
		if s.IsActive(height, u) {
			return u
		}
	}
	return BaseSprout
}

// CurrentBranchID returns the branch ID signature hashes at height commit
// to: the branch ID of the current epoch.
func (s Schedule) CurrentBranchID(height int32) uint32 {
	return upgradeInfo[s.CurrentEpoch(height)].BranchID
}

// IsConsensusBranchID reports whether id names any known upgrade's branch.
func IsConsensusBranchID(id uint32) bool {
	for _, info := range upgradeInfo {
		if info.BranchID == id {
			return true
		}
	}
	return false
}

// IsActivationHeight reports whether height is exactly u's activation
// point (never true for BaseSprout, which has no activation event).
func (s Schedule) IsActivationHeight(height int32, u Upgrade) bool {
	if u == BaseSprout || height < 0 {
		return false
	}
	return height == s[u].ActivationHeight
}

// IsActivationHeightForAny reports whether height is the activation point
// of some upgrade other than BaseSprout.
func (s Schedule) IsActivationHeightForAny(height int32) bool {
	if height < 0 {
		return false
	}
	for u := TestDummy; u < NumUpgrades; u++ {
		if height == s[u].ActivationHeight {
			return true
		}
	}
	return false
}

// NextEpoch returns the next upgrade still pending at height, if any.
func (s Schedule) NextEpoch(height int32) (Upgrade, bool) {
	if height < 0 {
		return 0, false
	}
	for u := TestDummy; u < NumUpgrades; u++ {
		if s.StateAt(height, u) == Pending {
			return u, true
		}
	}
	return 0, false
}

// NextActivationHeight returns the activation height of NextEpoch, if any.
func (s Schedule) NextActivationHeight(height int32) (int32, bool) {
	u, ok := s.NextEpoch(height)
	if !ok {
		return 0, false
	}
	return s[u].ActivationHeight, true
}

// Info returns the static metadata for u.
func Info(u Upgrade) UpgradeInfo {
	return upgradeInfo[u]
}

func (u Upgrade) String() string {
	if u >= 0 && u < NumUpgrades {
		return upgradeInfo[u].Name
	}
	return "unknown upgrade"
}
