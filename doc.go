// Package modloader decides which plugins of a host application load, in
// which order, and under which class-loader-style hierarchy. It also
// activates and deactivates single plugins after startup.
//
// A resolution run takes an ordered DiscoveredSet of ModuleDescriptors and
// a ResolutionContext and goes through four phases:
//
//   - version selection: one descriptor per id survives the build range
//     check, source priority and version comparison; expired, disabled and
//     mutually incompatible plugins are filtered
//   - identity resolution: ids, aliases and content module ids must be
//     unique; essential plugins win conflicts, otherwise both sides lose
//   - dependency closure: required dependencies are walked breadth-first
//     from the explicit subset (or all enabled plugins); disabled plugins
//     reached from privileged roots are re-admitted
//   - hierarchy building: modules are ordered topologically, package
//     prefixes are checked for collisions and every module gets a Loader
//     whose parents are the loaders of its strict dependencies
//
// Excluded descriptors are data, not errors: each one carries exactly one
// ExclusionReason, reported once through the exclusion callback.
//
// Basic Usage:
//
//	rc := modloader.NewResolutionContext(modloader.MustParseBuildNumber("IC-241.15989"))
//	rc.Essential.Add(modloader.NewModuleID("com.example.core"))
//
//	resolver := modloader.NewResolver(rc,
//		modloader.WithLogger(modloader.NewZapAdapter(zapLogger)),
//		modloader.WithExclusionHandler(func(d *modloader.ModuleDescriptor, r modloader.ExclusionReason) {
//			fmt.Printf("%s excluded: %s\n", d, r)
//		}))
//
//	set, err := modloader.NewDiscoverer(cfg.SearchPaths, logger).Discover(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//	res, err := resolver.Resolve(set)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	rt := modloader.NewRuntime(resolver, res, modloader.WithKnownDescriptors(set))
//	err = rt.Load(ctx, newDescriptor)
//
// Configuration:
// ResolverConfig is read from JSON, YAML or TOML through Argus and can be
// overridden with MODLOADER_* environment variables. The disabled set is
// persisted by DisabledStore and can be watched for changes.
//
// Copyright (c) 2025 AGILira - A. Giordano
// SPDX-License-Identifier: MPL-2.0
package modloader
