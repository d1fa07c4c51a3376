// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package pnframe_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wtp/pnioc/pnframe"
)

func TestNDRHeaderRoundTrip(t *testing.T) {
	h := pnframe.NDRHeader{ArgsMaximum: 1024, ArgsLength: 64, MaxCount: 64, Offset: 0, ActualCount: 64}
	b := pnframe.NewBuilder(pnframe.NDRHeaderLen)
	h.Encode(b)
	require.Len(t, b.Bytes(), pnframe.NDRHeaderLen)

	got, err := pnframe.ParseNDRHeader(pnframe.NewParser(b.Bytes()))
	require.NoError(t, err)
	require.Equal(t, h, got)
	require.True(t, got.PlausibleActualCount(64))
	require.False(t, got.PlausibleActualCount(10))
}
