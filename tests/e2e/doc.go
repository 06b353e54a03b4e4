// Copyright 2025 Takhin Data, Inc.

package e2e

// This file provides the main E2E test suite entry point
// Individual test packages are organized by category:
// - producer_consumer: Basic produce/consume E2E tests
// - consumer_group: Consumer group coordination tests
// - admin_api: Administrative API tests
// - fault_injection: Fault tolerance and recovery tests
// - performance: Performance and throughput tests
