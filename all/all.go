// Package all imports every supported registry implementation.
//
// Import this package for its side effects to register the ecosystems:
//
//	import (
//		"github.com/git-pkgs/upmbridge"
//		_ "github.com/git-pkgs/upmbridge/all"
//	)
//
//	// Now registries can be created by ecosystem name
//	reg, err := upmbridge.NewRegistry("nuget", "", nil)
package all

import (
	_ "github.com/git-pkgs/upmbridge/internal/nuget"
)
