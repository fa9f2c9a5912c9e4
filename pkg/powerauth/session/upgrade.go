package session

import (
	"context"
	"encoding/base64"

	"github.com/milanoid/powerauth-mobile-sdk/internal/observability"
	"github.com/milanoid/powerauth-mobile-sdk/pkg/powerauth/paerr"
)

// Protocol upgrade migrates a committed V2 activation to V3, replacing
// the linear signature counter with the hash based one. While an upgrade
// is pending the session keeps signing with the pre-upgrade protocol
// version, the new counter takes effect at FinishProtocolUpgrade.

// ProtocolUpgradeData carries the server provided parameters of a pending
// upgrade.
type ProtocolUpgradeData struct {
	// CtrData is the Base64 encoded initial hash based counter.
	CtrData string
}

// HasPendingProtocolUpgrade reports whether an upgrade was started and
// not finished yet.
func (self *Session) HasPendingProtocolUpgrade() bool {
	return self.HasValidActivation() && self.pd.pendingUpgrade
}

// PendingProtocolUpgradeVersion returns the target version of a pending
// upgrade, VersionNA when no upgrade is pending.
func (self *Session) PendingProtocolUpgradeVersion() ProtocolVersion {
	if !self.HasPendingProtocolUpgrade() {
		return VersionNA
	}
	return self.pd.upgradeVersion
}

// StartProtocolUpgrade marks the activation as upgrading to the maximum
// supported version.
func (self *Session) StartProtocolUpgrade(ctx context.Context) error {
	log := observability.GetObservability(ctx).Log().With("op", "StartProtocolUpgrade")

	if !self.HasValidActivation() {
		return paerr.New(paerr.WrongState, "no valid activation")
	}
	if self.pd.pendingUpgrade {
		return paerr.New(paerr.WrongState, "protocol upgrade already pending")
	}
	if self.pd.version >= MaxSupportedVersion {
		return paerr.New(paerr.WrongState, "activation already at version %s", self.pd.version)
	}

	self.pd.pendingUpgrade = true
	self.pd.upgradeVersion = MaxSupportedVersion

	log.Info("protocol upgrade started", "from", self.pd.version, "to", self.pd.upgradeVersion)
	return nil
}

// ApplyProtocolUpgradeData installs the server provided hash counter for
// the pending upgrade.
func (self *Session) ApplyProtocolUpgradeData(ctx context.Context, data ProtocolUpgradeData) error {
	log := observability.GetObservability(ctx).Log().With("op", "ApplyProtocolUpgradeData")

	if !self.HasPendingProtocolUpgrade() {
		return paerr.New(paerr.WrongState, "no pending protocol upgrade")
	}

	ctrData, err := base64.StdEncoding.DecodeString(data.CtrData)
	if nil != err {
		return paerr.Wrap(paerr.Encryption, err, "malformed CtrData")
	}
	if len(ctrData) != ctrDataSize {
		return paerr.New(paerr.WrongParam, "invalid CtrData, length %d != %d", len(ctrData), ctrDataSize)
	}

	self.pd.ctrData = ctrData

	log.Debug("protocol upgrade data applied")
	return nil
}

// FinishProtocolUpgrade completes a pending upgrade. The activation
// switches to the target protocol version and drops the legacy counter.
func (self *Session) FinishProtocolUpgrade(ctx context.Context) error {
	log := observability.GetObservability(ctx).Log().With("op", "FinishProtocolUpgrade")

	if !self.HasPendingProtocolUpgrade() {
		return paerr.New(paerr.WrongState, "no pending protocol upgrade")
	}
	if len(self.pd.ctrData) != ctrDataSize {
		return paerr.New(paerr.WrongState, "protocol upgrade data not applied")
	}

	self.pd.version = self.pd.upgradeVersion
	self.pd.pendingUpgrade = false
	self.pd.ctrLong = 0

	log.Info("protocol upgrade finished", "version", self.pd.version)
	return nil
}
