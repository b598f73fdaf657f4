/*
main.go

Copyright © 2025 Code Monkey Cybersecurity
Contact: git@cybermonkey.net.au

This file is part of wazuh-vms.

This software is dual-licensed under the Do No Harm License
and the GNU Affero General Public License v3 (AGPL-3.0-or-later).
You may use, modify, and distribute it under the terms of either license.

See LICENSE.agpl and LICENSE.dnh for full details.
*/
package main

import (
	"fmt"
	"os"

	"github.com/CodeMonkeyCybersecurity/wazuh-vms/cmd"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/logger"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/shared"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/telemetry"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/vm_err"
	"go.uber.org/zap"
)

func main() {
	logger.InitializeWithFallback()
	if err := telemetry.Init(shared.AppID); err != nil {
		logger.L().Warn("Telemetry disabled", zap.Error(err))
	}

	err := cmd.Execute()
	if serr := telemetry.Shutdown(); serr != nil {
		logger.L().Debug("Telemetry flush failed", zap.Error(serr))
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "❌ "+vm_err.UserMessage(err))
		os.Exit(vm_err.GetExitCode(err))
	}
}
