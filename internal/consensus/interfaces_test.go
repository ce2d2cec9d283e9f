package consensus

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fluxd-org/fluxd/internal/wire"
)

func TestNoopShieldedVerifierAlwaysApproves(t *testing.T) {
	var v ShieldedVerifier = NoopShieldedVerifier{}
	require.NoError(t, v.VerifyJoinSplits(&wire.Transaction{}))
	require.NoError(t, v.VerifySpendsAndOutputs(&wire.Transaction{}))
}

func TestAcceptAllVerifiersAlwaysApprove(t *testing.T) {
	var pow PowVerifier = AcceptAllPowVerifier{}
	require.NoError(t, pow.VerifyHeader(&wire.Header{}, 0x1d00ffff))

	var pon PonVerifier = AcceptAllPonVerifier{}
	require.NoError(t, pon.VerifyHeader(&wire.Header{}, 100, []byte("owner")))

	var fl FluxnodeLinter = AcceptAllFluxnodeLinter{}
	require.NoError(t, fl.LintStart(&wire.FluxnodeStart{}, wire.OutPoint{}))
	require.NoError(t, fl.LintConfirm(&wire.FluxnodeConfirm{}, []byte("owner")))
}
