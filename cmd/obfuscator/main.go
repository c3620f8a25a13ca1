// Command obfuscator turns a reviewed index of names, abbreviations and
// terms into a substitution scheme and applies it to a text corpus.
//
// Each stage can be run on its own; later stages read the artifacts written
// next to the index file by earlier ones.
//
// Usage:
//
//	# Full pipeline with the default file names
//	./obfuscator run
//
//	# Single stages
//	./obfuscator classify names_index_reviewed.txt
//	./obfuscator generate --seed 42
//	./obfuscator finalize --corpus knowledge_base_source_reviewed --output knowledge_base_final
//
//	# Persistent token memo and a YAML config
//	TOKEN_STORE=tokens.db ./obfuscator run --config obfuscator-config.yaml
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
