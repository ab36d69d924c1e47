// Package app composes the raffle engine into a running application.
//
// # Architecture Role
//
// The app package sits above the domain and service layers and is
// responsible for wiring them together. It is NOT a business logic
// layer - round semantics live in internal/app/services/rounds/.
//
// # Package Structure
//
//	internal/app/
//	├── application.go      # Application struct, wiring, and lifecycle
//	├── domain/             # Domain models (pure data structures)
//	│   ├── round/          # Round lifecycle, draw requests, block clock, entropy
//	│   ├── ticket/         # Escrow deposits, positions, refunds
//	│   └── payout/         # Distribution shares and custody
//	├── storage/            # Storage interfaces and implementations
//	│   ├── interfaces.go   # Store interfaces (RoundStore, EscrowStore, ...)
//	│   ├── memory/         # In-memory implementation for testing
//	│   ├── postgres/       # PostgreSQL implementation for production
//	│   └── redis/          # Snapshot mirror for read-heavy consumers
//	├── services/rounds/    # Round engine: deposits, draws, payouts, refunds
//	├── httpapi/            # HTTP API handlers and routing
//	├── system/             # Lifecycle manager for long-running services
//	└── metrics/            # Prometheus metrics
//
// # Responsibilities
//
// The app package is responsible for:
//
//   - Composing the rounds service with its storage, clock, entropy
//     source, and custodian
//   - Defining the facade that httpapi and runtime depend on
//   - Managing startup and shutdown ordering via system.Manager
//
// Request handling belongs in internal/app/httpapi/, process wiring
// (config, database, server) in internal/app/runtime/.
package app
