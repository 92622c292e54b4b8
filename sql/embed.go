// Package sql provides the reference SQL for the version control contract.
package sql

import (
	_ "embed"
)

// ControlSQL creates the sistema schema, the tb_sys_controle_versao control
// table and the two functions every treated script calls:
//   - fn_verifica_script: raises when the script id was already applied
//   - fn_atualiza_script: records the script id as applied
//
// Production databases ship their own versions; this one is used to
// provision empty databases in integration tests.
//
//go:embed control.sql
var ControlSQL string
