package ezsp

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrUnsupportedVersion   = errors.New("ezsp: unsupported protocol version")
	ErrUnsupportedStackType = errors.New("ezsp: unsupported stack type")
)

// NegotiateVersion agrees on a protocol version with the NCP and fixes the
// wire layout for the rest of the session. It is the first command after
// Start. If the NCP runs an older supported version, VERSION is sent again
// with that version so both ends agree on it. A zero desired version asks
// for LatestProtocolVersion.
func (e *Engine) NegotiateVersion(ctx context.Context, desired uint8) (VersionInfo, error) {
	if desired == 0 {
		desired = LatestProtocolVersion
	}
	info, err := e.Version(ctx, desired)
	if err != nil {
		return info, err
	}

	switch {
	case info.ProtocolVersion == desired:
	case info.ProtocolVersion >= MinProtocolVersion && info.ProtocolVersion < desired:
		e.logger.Info("ezsp NCP runs an older protocol, renegotiating",
			"desired", fmt.Sprintf("0x%02X", desired), "ncp", fmt.Sprintf("0x%02X", info.ProtocolVersion))
		if info, err = e.Version(ctx, info.ProtocolVersion); err != nil {
			return info, err
		}
	default:
		return info, fmt.Errorf("%w: NCP 0x%02X, host 0x%02X-0x%02X",
			ErrUnsupportedVersion, info.ProtocolVersion, MinProtocolVersion, desired)
	}

	if info.StackType != StackTypeMesh {
		return info, fmt.Errorf("%w: 0x%02X", ErrUnsupportedStackType, info.StackType)
	}
	if err := e.setVersion(info.ProtocolVersion); err != nil {
		return info, err
	}

	e.logger.Info("ezsp version negotiated",
		"protocol", fmt.Sprintf("0x%02X", info.ProtocolVersion), "stack", info.StackVersionString())
	return info, nil
}
