// Package builtin registers every built-in module with the catalog. Import
// it for side effects from binaries that want the full set available to
// configuration files.
package builtin

import (
	_ "github.com/modserve/modserve/pkg/modules/accesslog"
	_ "github.com/modserve/modserve/pkg/modules/echo"
	_ "github.com/modserve/modserve/pkg/modules/httpparser"
	_ "github.com/modserve/modserve/pkg/modules/promsniffer"
	_ "github.com/modserve/modserve/pkg/modules/reqlog"
	_ "github.com/modserve/modserve/pkg/modules/rules"
	_ "github.com/modserve/modserve/pkg/modules/staticfiles"
	_ "github.com/modserve/modserve/pkg/modules/tlswrap"
)
