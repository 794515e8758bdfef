package decsync

// LegalNotice provides license notices for DecSync itself and its
// third-party dependencies.
const LegalNotice = `DecSync

Licensed under the terms of the MIT License.


================================================================================
DecSync depends on the following third-party software:
================================================================================

Go and the Go standard library.

https://golang.org/

Copyright (c) 2009 The Go Authors. All rights reserved.

Used under the terms of the 3-Clause BSD License.

--------------------------------------------------------------------------------

errors

https://github.com/pkg/errors

Copyright (c) 2015, Dave Cheney <dave@cheney.net>

Used under the terms of the 2-Clause BSD License.

--------------------------------------------------------------------------------

TOML parser and encoder

https://github.com/BurntSushi/toml

Copyright (c) 2013 TOML authors

Used under the terms of the MIT License.

--------------------------------------------------------------------------------

go-humanize

https://github.com/dustin/go-humanize

Copyright (c) 2005-2008 Dustin Sallings

Used under the terms of the MIT License.

--------------------------------------------------------------------------------

basex

https://github.com/eknkc/basex

Copyright (c) 2018 Ekin Koc

Used under the terms of the MIT License.

--------------------------------------------------------------------------------

color

https://github.com/fatih/color

Copyright (c) 2013 Fatih Arslan

Used under the terms of the MIT License.

--------------------------------------------------------------------------------

go-colorable

https://github.com/mattn/go-colorable

Copyright (c) 2016 Yasuhiro Matsumoto

Used under the terms of the MIT License.

--------------------------------------------------------------------------------

go-isatty

https://github.com/mattn/go-isatty

Copyright (c) Yasuhiro MATSUMOTO <mattn.jp@gmail.com>

Used under the terms of the MIT License.

--------------------------------------------------------------------------------

uuid

https://github.com/google/uuid

Copyright (c) 2009, 2014 Google Inc. All rights reserved.

Used under the terms of the 3-Clause BSD License.

--------------------------------------------------------------------------------

Cobra

https://github.com/spf13/cobra

Copyright 2013 Steve Francia

Used under the terms of the Apache License, Version 2.0.

--------------------------------------------------------------------------------

pflag

https://github.com/spf13/pflag

Copyright (c) 2012 Alex Ogier, The Go Authors

Used under the terms of the 3-Clause BSD License.

--------------------------------------------------------------------------------

mousetrap

https://github.com/inconshreveable/mousetrap

Copyright 2014 Alan Shreve

Used under the terms of the Apache License, Version 2.0.

--------------------------------------------------------------------------------

testify

https://github.com/stretchr/testify

Copyright (c) 2012-2020 Mat Ryer, Tyler Bunnell and contributors

Used under the terms of the MIT License.

--------------------------------------------------------------------------------

go-spew

https://github.com/davecgh/go-spew

Copyright (c) 2012-2016 Dave Collins

Used under the terms of the ISC License.

--------------------------------------------------------------------------------

go-difflib

https://github.com/pmezard/go-difflib

Copyright (c) 2013, Patrick Mezard

Used under the terms of the 3-Clause BSD License.

--------------------------------------------------------------------------------

golang.org/x/sys

https://golang.org/x/sys

Copyright (c) 2009 The Go Authors. All rights reserved.

Used under the terms of the 3-Clause BSD License.

--------------------------------------------------------------------------------

golang.org/x/text

https://golang.org/x/text

Copyright (c) 2009 The Go Authors. All rights reserved.

Used under the terms of the 3-Clause BSD License.

--------------------------------------------------------------------------------

yaml.v3

https://gopkg.in/yaml.v3

Copyright (c) 2006-2011 Kirill Simonov
Copyright (c) 2011-2019 Canonical Ltd

Used under the terms of the MIT License and the Apache License, Version 2.0.
`
