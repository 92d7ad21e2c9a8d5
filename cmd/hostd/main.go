// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"

	"github.com/google/uuid"
	"github.com/wlanhost/hostd/cmd/hostd/commands"
	"github.com/wlanhost/hostd/internal/doctor"
	"github.com/wlanhost/hostd/internal/notify"
)

func main() {
	traceId := uuid.NewString()
	ctx := notify.WithTraceID(context.Background(), traceId)
	err := commands.Execute(ctx)
	if err != nil {
		doctor.CheckErr(ctx, err)
	}
}
