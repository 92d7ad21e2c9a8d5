// SPDX-License-Identifier: Apache-2.0

package erx

import (
	"errors"
	"testing"

	"github.com/joomcode/errorx"
	"github.com/stretchr/testify/require"
)

var (
	testNamespace = errorx.NewNamespace("erxtest")
	testBusy      = testNamespace.NewType("busy", TraitTransient)
	testFull      = testNamespace.NewType("full", TraitResourceExhaustion)
	testFirmware  = testNamespace.NewType("firmware", TraitFirmwareFault)
	testInvariant = testNamespace.NewType("invariant", TraitInvariant, TraitFirmwareFault)
	testTemporary = testNamespace.NewType("temporary", errorx.Temporary())
)

func TestClassify(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected Category
	}{
		{name: "nil", err: nil, expected: CategoryUnknown},
		{name: "plain error", err: errors.New("boom"), expected: CategoryUnknown},
		{name: "transient", err: testBusy.New("busy"), expected: CategoryTransient},
		{name: "errorx temporary", err: testTemporary.New("later"), expected: CategoryTransient},
		{name: "resource exhaustion", err: testFull.New("full"), expected: CategoryResourceExhaustion},
		{name: "firmware fault", err: testFirmware.New("dead"), expected: CategoryFirmwareFault},
		{name: "invariant wins", err: testInvariant.New("bug"), expected: CategoryInvariant},
		{name: "decorated keeps category", err: errorx.Decorate(testBusy.New("busy"), "while adding"), expected: CategoryTransient},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, Classify(tc.err))
		})
	}
}

func TestEnsure(t *testing.T) {
	req := require.New(t)

	req.Nil(Ensure(nil, testFirmware, "unused"))

	err := Ensure(errors.New("io failure"), testFirmware, "create resource")
	req.Equal(CategoryFirmwareFault, Classify(err))
	req.True(errorx.IsOfType(err, testFirmware))

	err = Ensure(testBusy.New("busy"), testFirmware, "create resource")
	req.Equal(CategoryTransient, Classify(err))
	req.True(IsTransient(err))
	req.True(CategoryTransient.Retryable())
	req.False(CategoryInvariant.Retryable())
}
