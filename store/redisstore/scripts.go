package redisstore

import "github.com/redis/go-redis/v9"

// KEYS[1] = email key, KEYS[2] = account key, KEYS[3] = verify key
// ARGV[1] = id, ARGV[2..] = field/value pairs for the account hash
//
// Returns 1 on insert, 0 when the email is taken.
const createScript = `
if redis.call("SET", KEYS[1], ARGV[1], "NX") == false then
  return 0
end
local fields = {}
for i = 2, #ARGV do
  fields[#fields + 1] = ARGV[i]
end
redis.call("HSET", KEYS[2], unpack(fields))
local vhash = redis.call("HGET", KEYS[2], "vhash")
if vhash and vhash ~= "" then
  redis.call("SET", KEYS[3], ARGV[1])
end
return 1
`

var createLua = redis.NewScript(createScript)

// KEYS[1] = account key
// ARGV[1] = digest
const setRefreshScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[1], "rhash", ARGV[1])
return 1
`

var setRefreshLua = redis.NewScript(setRefreshScript)

// KEYS[1] = account key
// ARGV[1] = expected digest, ARGV[2] = next digest
const rotateRefreshScript = `
if ARGV[1] == "" then
  return 0
end
local current = redis.call("HGET", KEYS[1], "rhash")
if not current or current ~= ARGV[1] then
  return 0
end
redis.call("HSET", KEYS[1], "rhash", ARGV[2])
return 1
`

var rotateRefreshLua = redis.NewScript(rotateRefreshScript)

// KEYS[1] = verify key, KEYS[2] = account key
// ARGV[1] = account id, ARGV[2] = now (unix ms), ARGV[3] = updated timestamp
//
// Returns 1 when the account was verified, 0 when the token is unknown,
// already consumed or expired.
const markVerifiedScript = `
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
  return 0
end
local vexp = tonumber(redis.call("HGET", KEYS[2], "vexp") or "0")
if vexp > 0 and vexp <= tonumber(ARGV[2]) then
  return 0
end
redis.call("DEL", KEYS[1])
redis.call("HSET", KEYS[2], "verified", "1", "vhash", "", "vexp", "0", "updated", ARGV[3])
return 1
`

var markVerifiedLua = redis.NewScript(markVerifiedScript)

// KEYS[1] = account key, KEYS[2] = old verify key, KEYS[3] = new verify key
// ARGV[1] = account id, ARGV[2] = old digest, ARGV[3] = new digest,
// ARGV[4] = expiry (unix ms, 0 for none), ARGV[5] = updated timestamp
//
// Returns 1 when the pending token was replaced, 0 when the account is
// missing, verified or holds a different digest.
const replaceVerificationScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
local f = redis.call("HMGET", KEYS[1], "verified", "vhash")
if f[1] == "1" or (f[2] or "") ~= ARGV[2] then
  return 0
end
if ARGV[2] ~= "" and redis.call("GET", KEYS[2]) == ARGV[1] then
  redis.call("DEL", KEYS[2])
end
redis.call("SET", KEYS[3], ARGV[1])
redis.call("HSET", KEYS[1], "vhash", ARGV[3], "vexp", ARGV[4], "updated", ARGV[5])
return 1
`

var replaceVerificationLua = redis.NewScript(replaceVerificationScript)

// KEYS[1] = account key
// ARGV[1] = password digest, ARGV[2] = updated timestamp
const updatePasswordScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[1], "pw", ARGV[1], "updated", ARGV[2])
return 1
`

var updatePasswordLua = redis.NewScript(updatePasswordScript)

// KEYS[1] = account key, KEYS[2] = email key, KEYS[3] = verify key
// ARGV[1] = account id
const deleteScript = `
redis.call("DEL", KEYS[1])
if redis.call("GET", KEYS[2]) == ARGV[1] then
  redis.call("DEL", KEYS[2])
end
if redis.call("GET", KEYS[3]) == ARGV[1] then
  redis.call("DEL", KEYS[3])
end
return 1
`

var deleteLua = redis.NewScript(deleteScript)
