// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the agent's primary YAML configuration.
//
// The file is read by [LoadFile] and merged over [Default]. After
// loading, ${VAR} and ${VAR:-default} patterns are expanded in paths,
// URLs, and credentials, and relative paths are resolved against the
// directory holding the config file. [Load] is the forgiving entry
// point used at startup: a missing or unparseable file is logged and
// the defaults are used instead.
//
// Destinations come from the destinations list plus two flat legacy
// key groups. cloud_enabled, cloud_server, and cloud_api_key describe
// a destination named "cloud"; server and server_api_key describe the
// "local" legacy collector. An explicit destinations entry with the
// same name wins. The flat mqtt_* keys likewise fill any field the
// mqtt section leaves empty.
//
// Key exports:
//
//   - [Config] -- the whole file
//   - [Default], [LoadFile], [Load]
//   - [Config.DeliveryDestinations] and [Config.MQTTRelay] -- the
//     views the rest of the agent consumes
package config
