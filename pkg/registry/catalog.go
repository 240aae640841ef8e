package registry

import "regexp"

// re is a short alias so the catalog below stays readable.
func re(pattern string) *regexp.Regexp { return regexp.MustCompile(pattern) }

// Default returns the built-in catalog of supported library packages.
//
// Version lists are ordered newest-first; that order also drives fallback
// iteration when the preferred version 404s. Marker patterns are heuristics
// over raw source text: they pin a version when user code uses an API that
// only exists there.
func Default() *Registry {
	libs := []*LibrarySpec{
		{
			Prefix:         "@openzeppelin/contracts",
			DefaultVersion: "v4.9.6",
			Versions: []VersionSpec{
				{
					Name:    "v5.4.0",
					BaseURL: "https://raw.githubusercontent.com/OpenZeppelin/openzeppelin-contracts/v5.4.0/contracts",
					Markers: []*regexp.Regexp{
						re(`\bOwnable\(`),             // v5 Ownable takes the initial owner as a constructor argument
						re(`pragma solidity \^0\.8\.2\d`), // v5 requires ^0.8.20+
						re(`\b_update\s*\(`),          // v5 replaced the _beforeTokenTransfer hooks with _update
					},
				},
				{
					Name:    "v4.9.6",
					BaseURL: "https://raw.githubusercontent.com/OpenZeppelin/openzeppelin-contracts/v4.9.6/contracts",
					Markers: []*regexp.Regexp{
						re(`\b_beforeTokenTransfer\s*\(`),
						re(`\bCounters\.Counter\b`),
						re(`utils/Counters\.sol`),
					},
				},
				{
					Name:    "v3.4.2",
					BaseURL: "https://raw.githubusercontent.com/OpenZeppelin/openzeppelin-contracts/v3.4.2/contracts",
					Markers: []*regexp.Regexp{
						re(`pragma solidity \^0\.[67]`),
						re(`\bSafeMath\b`),
					},
				},
			},
		},
		{
			Prefix:         "@openzeppelin/contracts-upgradeable",
			DefaultVersion: "v4.9.6",
			Versions: []VersionSpec{
				{
					Name:    "v5.4.0",
					BaseURL: "https://raw.githubusercontent.com/OpenZeppelin/openzeppelin-contracts-upgradeable/v5.4.0/contracts",
					Markers: []*regexp.Regexp{
						re(`__Ownable_init\(\s*\w`), // v5 init takes the initial owner
						re(`pragma solidity \^0\.8\.2\d`),
					},
				},
				{
					Name:    "v4.9.6",
					BaseURL: "https://raw.githubusercontent.com/OpenZeppelin/openzeppelin-contracts-upgradeable/v4.9.6/contracts",
					Markers: []*regexp.Regexp{
						re(`__Ownable_init\(\s*\)`),
					},
				},
			},
		},
		{
			Prefix:         "@chainlink/contracts",
			DefaultVersion: "v1.4.0",
			Versions: []VersionSpec{
				{
					Name:    "v1.4.0",
					BaseURL: "https://raw.githubusercontent.com/smartcontractkit/chainlink/contracts-v1.4.0/contracts",
					Markers: []*regexp.Regexp{
						re(`src/v0\.8/`),
					},
				},
				{
					Name:    "v0.8.0",
					BaseURL: "https://raw.githubusercontent.com/smartcontractkit/chainlink/v1.13.3/contracts",
					Markers: []*regexp.Regexp{
						re(`src/v0\.[67]/`),
					},
				},
			},
		},
		{
			Prefix:         "solmate",
			DefaultVersion: "v7",
			Versions: []VersionSpec{
				{
					Name:    "v7",
					BaseURL: "https://raw.githubusercontent.com/transmissions11/solmate/v7/src",
				},
				{
					Name:    "v6",
					BaseURL: "https://raw.githubusercontent.com/transmissions11/solmate/v6/src",
					Markers: []*regexp.Regexp{
						re(`pragma solidity >=0\.7`),
					},
				},
			},
		},
		{
			Prefix:         "forge-std",
			DefaultVersion: "v1.9.6",
			Versions: []VersionSpec{
				{
					Name:    "v1.9.6",
					BaseURL: "https://raw.githubusercontent.com/foundry-rs/forge-std/v1.9.6/src",
				},
			},
		},
		{
			Prefix:         "hardhat",
			DefaultVersion: "v2",
			Versions: []VersionSpec{
				{
					Name:    "v2",
					BaseURL: "https://raw.githubusercontent.com/NomicFoundation/hardhat/hardhat%402.22.0/packages/hardhat-core",
				},
			},
		},
	}

	// Known edge-case files that moved or disappeared between versions.
	// Tried only after every registered version has failed for the path.
	fallbacks := map[string]string{
		"@openzeppelin/contracts/utils/Counters.sol":      "https://raw.githubusercontent.com/OpenZeppelin/openzeppelin-contracts/v4.9.6/contracts/utils/Counters.sol",
		"@openzeppelin/contracts/utils/math/SafeMath.sol": "https://raw.githubusercontent.com/OpenZeppelin/openzeppelin-contracts/v4.9.6/contracts/utils/math/SafeMath.sol",
		"@openzeppelin/contracts/GSN/Context.sol":         "https://raw.githubusercontent.com/OpenZeppelin/openzeppelin-contracts/v3.4.2/contracts/GSN/Context.sol",
	}

	r, err := New(libs, fallbacks)
	if err != nil {
		// The built-in catalog is validated by tests; a failure here is a
		// programming error.
		panic(err)
	}
	return r
}
