// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pipeline

import (
	"errors"
	"testing"
)

func TestNewError_DefaultsStatusFromKind(t *testing.T) {
	cases := []struct {
		kind ErrorKind
		want int
	}{
		{KindNoRoute, 404},
		{KindNoEligibleUpstream, 503},
		{KindUpstreamIO, 502},
		{KindQuantumAllFailed, 502},
		{KindUpstreamTimeout, 504},
		{KindNotProductionReady, 503},
		{KindInternal, 500},
	}
	for _, c := range cases {
		e := newError(c.kind, 0, nil)
		if e.Status != c.want {
			t.Errorf("newError(%v, 0, nil).Status = %d, want %d", c.kind, e.Status, c.want)
		}
	}
}

func TestNewError_ExplicitStatusNotOverridden(t *testing.T) {
	e := newError(KindNoRoute, 418, nil)
	if e.Status != 418 {
		t.Errorf("Status = %d, want 418", e.Status)
	}
}

func TestError_UnwrapAndMessage(t *testing.T) {
	inner := errors.New("dial refused")
	e := newError(KindUpstreamIO, 0, inner)
	if !errors.Is(e, inner) {
		t.Error("errors.Is(e, inner) = false, want true via Unwrap")
	}
	if got := e.Error(); got == "" {
		t.Error("Error() returned empty string")
	}
}

func TestErrorKind_String(t *testing.T) {
	if KindNoRoute.String() != "no_route" {
		t.Errorf("KindNoRoute.String() = %q", KindNoRoute.String())
	}
	if ErrorKind(999).String() != "internal" {
		t.Errorf("unknown kind String() = %q, want internal", ErrorKind(999).String())
	}
}
