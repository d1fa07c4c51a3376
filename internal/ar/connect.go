// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package ar

import (
	"github.com/wtp/pnioc/internal/pnerr"
	"github.com/wtp/pnioc/pnframe"
)

// SlotPlan is the minimal slot-layout input the connection manager needs to
// build ExpectedSubmoduleBlock and size the IOCR buffers: counts plus enough
// per-slot identity to address each one. The full slot configuration
// (names, units, alarm limits, ...) is owned by the registry (C5) and never
// crosses into this package — C3 sits below C5 in the dependency order
// (spec.md §2).
type SlotPlan struct {
	SensorSlots   []uint16 // slot indices carrying sensor data
	ActuatorSlots []uint16 // slot indices carrying actuator data
}

func (p SlotPlan) inputBytes() int  { return len(p.SensorSlots) * pnframe.SensorSlotLen }
func (p SlotPlan) outputBytes() int { return len(p.ActuatorSlots) * pnframe.ActuatorSlotLen }

// BuildConnectRequest constructs the full Connect RPC (OpNum=Connect,
// DREP per strategy) containing ARBlockReq, two IOCRBlockReq (input/output
// RTC1), AlarmCRBlockReq, and ExpectedSubmoduleBlock (§4.3).
func BuildConnectRequest(a *AR, plan SlotPlan, st Strategy, seq uint32) []byte {
	drep := pnframe.DREPBigEndian
	if st.UUIDLittleEndian {
		drep = pnframe.DREPLittleEndian
	}

	hdr := pnframe.RPCHeader{
		Version:       4,
		PacketType:    pnframe.PacketTypeRequest,
		DREP:          drep,
		ObjectUUID:    a.ARUUID,
		InterfaceUUID: pnframe.InterfaceUUIDPNIODevice,
		InterfaceVer:  1,
		SequenceNum:   seq,
		OpNum:         uint16(st.OpNumConnect),
	}

	body := pnframe.NewBuilder(256)
	if st.EmitNDR {
		ndr := pnframe.NDRHeader{ArgsMaximum: 4096, ArgsLength: 0, MaxCount: 4096, Offset: 0, ActualCount: 0}
		ndr.Encode(body)
	}

	arReqBody := pnframe.NewBuilder(32)
	arReqBody.Raw(a.ARUUID[:])
	arReqBody.U16BE(a.SessionKey)
	appendBlock(body, BlockARReq, arReqBody.Bytes())

	inFrameID := RTC1Base + 2*a.SessionKey
	outFrameID := inFrameID + 1

	inputIOCR := pnframe.NewBuilder(16)
	inputIOCR.U8(0) // IOCR kind: input
	inputIOCR.U16BE(inFrameID)
	inputIOCR.U16BE(uint16(plan.inputBytes()))
	appendBlock(body, BlockIOCRReq, inputIOCR.Bytes())

	outputIOCR := pnframe.NewBuilder(16)
	outputIOCR.U8(1) // IOCR kind: output
	outputIOCR.U16BE(outFrameID)
	outputIOCR.U16BE(uint16(plan.outputBytes()))
	appendBlock(body, BlockIOCRReq, outputIOCR.Bytes())

	appendBlock(body, BlockAlarmCRReq, []byte{0, 1}) // alarm CR reference, minimal

	expSub := pnframe.NewBuilder(64)
	slots := plan.SensorSlots
	if st.SlotScopeAll {
		slots = append(append([]uint16{}, plan.SensorSlots...), plan.ActuatorSlots...)
	}
	expSub.U16BE(uint16(len(slots)))
	for _, s := range slots {
		expSub.U16BE(s)
	}
	appendBlock(body, BlockExpSubmod, expSub.Bytes())

	hdr.FragmentLength = uint16(body.Len())

	full := pnframe.NewBuilder(RPCHeaderLenPlus(body.Len()))
	hdr.Encode(full)
	full.Raw(body.Bytes())
	return full.Bytes()
}

// RPCHeaderLenPlus is a small helper so callers size the outer builder
// without importing pnframe.RPCHeaderLen directly at call sites.
func RPCHeaderLenPlus(n int) int { return pnframe.RPCHeaderLen + n }

// ConnectResponse is the result of validating a Connect RPC response.
type ConnectResponse struct {
	Accepted bool
}

// ParseConnectResponse validates the peer's response per §4.3: fragment
// length non-zero, NDR ActualCount plausible when present, at least an
// ARBlockRes present. An empty or unparsable body is ConnectRejected.
func ParseConnectResponse(raw []byte) (ConnectResponse, error) {
	if len(raw) < pnframe.RPCHeaderLen {
		return ConnectResponse{}, pnerr.ErrConnectRejected
	}
	p := pnframe.NewParser(raw)
	hdr, err := pnframe.ParseRPCHeader(p)
	if err != nil {
		return ConnectResponse{}, pnerr.ErrConnectRejected
	}
	if hdr.FragmentLength == 0 {
		return ConnectResponse{}, pnerr.ErrConnectRejected
	}
	body := p.RemainingBytes()
	if len(body) == 0 {
		return ConnectResponse{}, pnerr.ErrConnectRejected
	}

	bp := pnframe.NewParser(body)
	// An optional NDR sub-header may precede the blocks; detect it by
	// attempting to parse blocks directly first, falling back to skipping
	// a leading NDR header if that fails to find any recognizable block.
	// A leading NDR header whose ActualCount is implausible rejects the
	// response.
	blocks, err := parseBlocks(bp)
	if err != nil || len(blocks) == 0 {
		if len(body) >= pnframe.NDRHeaderLen {
			ndr, nerr := pnframe.ParseNDRHeader(pnframe.NewParser(body))
			if nerr != nil || !ndr.PlausibleActualCount(len(body)-pnframe.NDRHeaderLen) {
				return ConnectResponse{}, pnerr.ErrConnectRejected
			}
			bp = pnframe.NewParser(body[pnframe.NDRHeaderLen:])
			blocks, err = parseBlocks(bp)
		}
	}
	if err != nil {
		return ConnectResponse{}, pnerr.ErrConnectRejected
	}
	if _, ok := findBlock(blocks, BlockARRes); !ok {
		return ConnectResponse{}, pnerr.ErrConnectRejected
	}
	return ConnectResponse{Accepted: true}, nil
}
