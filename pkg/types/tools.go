// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package types

import "context"

// Tools is the capability bundle the agent loop drives. Concrete tool
// sets (deliberately not part of this engine) implement it in the host.
type Tools interface {
	// ListToolSchemas returns the schemas advertised to the model on
	// every iteration.
	ListToolSchemas() []ToolSchema

	// Execute runs one named tool with parsed arguments and returns its
	// result as a string for inclusion in a "tool" role message.
	Execute(ctx context.Context, name string, args map[string]any) (string, error)

	// IsComplete reports whether the task the tools serve has concluded.
	IsComplete() bool

	// CurrentImages returns page images (if any) to inject into the next
	// model turn, or nil.
	CurrentImages() []ContentPart
}
