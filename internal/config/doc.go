// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

/*
Package config loads and validates xbackup configuration.

Configuration is layered with Koanf v2, each layer overriding the previous one:

 1. Built-in defaults (defaultConfig)
 2. A YAML file: the --config flag, else $XBACKUP_CONFIG, else the first of
    DefaultConfigPaths that exists
 3. Environment variables prefixed XBACKUP_, with a double underscore
    separating nested keys

Environment examples:

	XBACKUP_SOURCE__ROOT=/home             -> source.root
	XBACKUP_COMPRESSION__METHOD=zstd       -> compression.method
	XBACKUP_STORAGE__S3__BUCKET=backups    -> storage.s3.bucket
	XBACKUP_SOURCE__EXCLUDE=lost+found,tmp -> source.exclude (comma separated)

Example file:

	source:
	  root: /home
	  exclude: [lost+found]
	work_dir: /var/tmp/xbackup
	compression:
	  method: zstd
	  level: -1
	encryption:
	  method: aes
	  passphrase_file: /etc/xbackup/passphrase
	storage:
	  type: s3
	  prefix: hosts/web1
	  s3:
	    bucket: backups
	    region: eu-west-1
	retention:
	  enabled: true
	  keep_latest: 7

After unmarshalling, the passphrase file (if any) is read and the whole tree
is validated with go-playground/validator tags plus cross-field checks such
as the compression/encryption pairing rule. Validation errors name the
failing key, e.g. "storage.s3.bucket is required".
*/
package config
