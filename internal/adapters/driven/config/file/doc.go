// Package file stores kbase settings in a TOML file, ~/.kbase/config.toml
// by default. Keys are flat dot paths ("embedding.base_url") in memory and
// nested tables on disk.
package file
